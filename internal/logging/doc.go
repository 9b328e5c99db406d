// Package logging configures structured slog output for HyperSearch.
//
// The server logs JSON to stderr. With --debug, logs are also written to a
// size-rotated file under ~/.hypersearch/logs/ so a long-running server can be
// inspected after the fact.
package logging
