// Package api exposes the schema tables over HTTP.
//
// Every table gets the same resource surface: a list endpoint with the full
// filter micro-syntax, single and batch fetches, an existence check and the
// mutating endpoints. Handlers translate between wire JSON and typed rows
// through the codecs derived at startup and map errors to status codes:
// malformed parameters and values become 400, missing rows 404, and
// everything else 500.
package api
