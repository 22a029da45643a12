// Package typedesc defines the tagged-variant type descriptor model for
// declared table schemas.
//
// Type is a sealed interface using the marker method pattern: only types in
// this package implement it, which enables exhaustive type switches in the
// codec deriver and the DDL generator.
//
// Descriptors are built once at schema-registration time and never mutated
// afterward, so they are safe to share across concurrent request handlers
// without locking. Self-referential records are supported: a *Record may
// reach itself (directly or transitively) through its fields.
package typedesc
