// Package commands defines the exchangectl CLI, a client for the registry server.
//
// Commands
//
//   - add-token <addr>     Approve a token
//   - list-tokens          Print the approved tokens
//   - add-pair <a> <b>     Register a trading pair
//   - list-pairs           Print the active pairs
//   - remove-pair <a> <b>  Remove a trading pair
//   - pairs-for <addr>     Print the pairs that trade a token
//   - watch                Follow the registry stream
package commands
