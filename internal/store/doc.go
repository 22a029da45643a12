// Package store persists schema-defined tables in SQLite.
//
// A Store wraps one database configured with WAL mode, NORMAL synchronous
// mode, a 5-second busy timeout and foreign-key enforcement. Each table
// declared in the schema maps to a Table handle that owns its DDL, row
// encoding and CRUD operations.
//
// Storage mapping: int, bool, datetime and foreign-reference fields store as
// INTEGER (datetimes as milliseconds since epoch), floats as REAL, strings,
// enums and literals as TEXT, and every container or record type as
// canonical JSON TEXT (sorted keys, NFC-normalized strings, no HTML
// escaping) so stored bytes are deterministic.
//
// All queries are parameterized. Reads scan to wire values and run them
// through the field deserializers, so a row read back is typed exactly like
// a row that arrived over the API.
package store
