package indexer

import (
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedRegistry defines the methods for accessing indexed registry data.
type IndexedRegistry interface {
	Sequence() uint64
	IsApproved(token common.Address) bool
	HasPair(a, b common.Address) bool
	PairsForToken(token common.Address) []exchange.Pair
	Tokens() []common.Address
	Pairs() []exchange.Pair
}
