// Package jsonrpc holds the wire contract shared by the registry stream server and client.
package jsonrpc

import "encoding/json"

const (
	// RpcNamespace is the namespace under which the registry API and streamer are registered.
	RpcNamespace                  = "exchange"
	StateStreamSubscriptionMethod = "subscribeRegistryStream"

	// EventTypeFull carries an engine.State; EventTypeDiff carries a differ.StateDiff.
	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object sent to subscribers.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"` // Unix nanoseconds.
}
