// Package logging configures the process-wide structured logger. All log
// output goes to stderr; stdout is reserved for the MCP JSON-RPC stream and
// must never receive a log line.
package logging
