// Package codec derives per-field value codecs from type descriptors.
//
// A codec is a (deserializer, serializer) pair. Deserializers validate and
// type raw wire values (query-string fragments, decoded JSON bodies, decoded
// storage rows); serializers render typed values back to wire form. Leaf
// types that need no transformation record an explicit no-op (a nil
// Serializer) so record serializers can skip the call entirely.
//
// Derivation is recursive over the descriptor tree. Self-referential records
// are supported through forward stubs: a placeholder entry is registered in
// the Registry under the record's name before its fields are derived, then
// filled in place once the field codecs are known. A failed derivation
// removes the stub and reports the nested field path that defeated it.
//
// The error taxonomy separates two situations. NoCodecError is a
// derivation-time failure ("no codec derivable for this type"); it must
// surface at schema load and is fatal startup behavior. ValueError is a
// request-time failure (a supplied value does not match an otherwise
// derivable type); it is recoverable and becomes a client-facing bad-request
// error.
//
// A Registry and every codec derived from it are built once per schema at
// process startup and are read-only afterward; they are safe for concurrent
// use without locking.
package codec
