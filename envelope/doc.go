// Package envelope defines and validates the wire format for the bridge
// protocol - the only place wire-format knowledge lives.
//
// Two shapes travel on the wire: plain messages (id, type, timestamp, origin,
// targetOrigin, payload) and responses, which add a correlation id
// (responseId), a success flag, and an optional error description. Responses
// derive their type deterministically as the request type plus "_RESPONSE";
// the dispatch router relies on that suffix to separate response traffic from
// regular messages.
//
// Construction (NewMessage, NewResponse) stamps fresh uuids and current
// millisecond timestamps. Parsing (ParseMessage, ParseResponse) is the trust
// boundary: every inbound raw value is validated against a JSON Schema and
// typed field checks before any application code sees it, because the
// transport primitive accepts arbitrary untyped data from any context that
// can reach it.
package envelope
