// Package commands defines the exchanged CLI.
//
// Commands
//
//   - serve   Run the registry JSON-RPC server and stream
//
// # Implementation
//
// serve loads the YAML config (plus an optional .env file and EXCHANGE_*
// overrides), restores the registry from postgres when configured, applies the
// seed tokens and pairs, and serves HTTP, WebSocket and /metrics on one listener
// until SIGINT or SIGTERM.
package commands
