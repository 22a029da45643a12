// Package schema loads table declarations from CUE files and compiles them
// into type descriptors.
//
// A schema directory contains any number of .cue files contributing to three
// top-level structs:
//
//	table: tasks: {
//		fields: {
//			title:  {type: "string"}
//			due:    {type: "datetime", nullable: true}
//			owner:  {type: "ref", table: "users"}
//			status: {type: "enum", enum: "Status", default: "open"}
//			tags:   {type: "set", elem: {type: "string"}}
//		}
//	}
//
//	record: Node: {
//		fields: {
//			value: {type: "int"}
//			next:  {type: "record", record: "Node", nullable: true}
//		}
//	}
//
//	enum: Status: ["open", "closed"]
//
// Every table gets an implicit integer primary key named id; declaring a
// field named id is an error. Records are compiled in two phases (shells
// first, then fields) so they may reference themselves and each other freely.
//
// Compilation never derives codecs; it only produces descriptors. Codec
// derivation and its failure modes live in the codec package.
package schema
