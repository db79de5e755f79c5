package notify

import (
	"fmt"
	"strings"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/secrets"
)

// Destination names used by the pipelines.
const (
	DestMonitoring   = "monitoring"
	DestWhaleAlert   = "whale-alert"
	DestTransactions = "transactions"
	DestReceipts     = "receipts"
)

// Router resolves a destination name to a concrete channel id through the
// secrets resolver. An unresolvable destination silently disables only the
// alerts routed to it.
type Router struct {
	resolver secrets.Resolver
}

// NewRouter constructs a Router.
func NewRouter(resolver secrets.Resolver) *Router {
	return &Router{resolver: resolver}
}

// Resolve maps (network, destination) to a channel id. The lookup key
// follows the SLACK_<DESTINATION>@<chainID> convention.
func (r *Router) Resolve(network chain.Network, destination string) (string, bool) {
	name := strings.ToUpper(strings.ReplaceAll(destination, "-", "_"))
	return r.resolver.Get(fmt.Sprintf("SLACK_%s@%d", name, uint64(network)))
}
