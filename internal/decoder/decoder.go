package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"lending-alerts/internal/chain"
)

const marketABIJSON = `[
	{"type":"event","name":"MarketUpdate","inputs":[
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"floatingDepositShares","type":"uint256","indexed":false},
		{"name":"floatingAssets","type":"uint256","indexed":false},
		{"name":"floatingBorrowShares","type":"uint256","indexed":false},
		{"name":"floatingDebt","type":"uint256","indexed":false}]},
	{"type":"event","name":"Deposit","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdraw","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"receiver","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Borrow","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"receiver","type":"address","indexed":true},
		{"name":"borrower","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Repay","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"borrower","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"DepositAtMaturity","inputs":[
		{"name":"maturity","type":"uint256","indexed":true},
		{"name":"caller","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"fee","type":"uint256","indexed":false}]},
	{"type":"event","name":"WithdrawAtMaturity","inputs":[
		{"name":"maturity","type":"uint256","indexed":true},
		{"name":"caller","type":"address","indexed":false},
		{"name":"receiver","type":"address","indexed":false},
		{"name":"owner","type":"address","indexed":true},
		{"name":"positionAssets","type":"uint256","indexed":false},
		{"name":"assets","type":"uint256","indexed":false}]},
	{"type":"event","name":"BorrowAtMaturity","inputs":[
		{"name":"maturity","type":"uint256","indexed":true},
		{"name":"caller","type":"address","indexed":false},
		{"name":"receiver","type":"address","indexed":false},
		{"name":"borrower","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"fee","type":"uint256","indexed":false}]},
	{"type":"event","name":"RepayAtMaturity","inputs":[
		{"name":"maturity","type":"uint256","indexed":true},
		{"name":"caller","type":"address","indexed":true},
		{"name":"borrower","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"positionAssets","type":"uint256","indexed":false}]}
]`

// The ETH router proxies markets and re-emits a subset of their events with
// identical signatures; the registry de-duplicates them by topic hash.
const routerABIJSON = `[
	{"type":"event","name":"Deposit","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdraw","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"receiver","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]},
	{"type":"event","name":"Repay","inputs":[
		{"name":"caller","type":"address","indexed":true},
		{"name":"borrower","type":"address","indexed":true},
		{"name":"assets","type":"uint256","indexed":false},
		{"name":"shares","type":"uint256","indexed":false}]}
]`

// Registry resolves raw log topics to known event signatures and decodes
// matching entries into domain events.
type Registry struct {
	events map[common.Hash]abi.Event
	logger zerolog.Logger
}

// NewRegistry parses the market and router ABIs into a signature table.
func NewRegistry(logger zerolog.Logger) (*Registry, error) {
	events := make(map[common.Hash]abi.Event)
	for _, raw := range []string{marketABIJSON, routerABIJSON} {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse event abi: %w", err)
		}
		for _, ev := range parsed.Events {
			if _, dup := events[ev.ID]; dup {
				continue
			}
			events[ev.ID] = ev
		}
	}
	return &Registry{
		events: events,
		logger: logger.With().Str("component", "decoder").Logger(),
	}, nil
}

// Decode turns a raw log entry into a domain event. Unknown signatures and
// malformed payloads report ok=false; neither is an error.
func (r *Registry) Decode(entry chain.RawLog) (Event, bool) {
	if len(entry.Topics) == 0 {
		return nil, false
	}
	ev, ok := r.events[entry.Topics[0]]
	if !ok {
		return nil, false
	}

	values := make(map[string]interface{})
	if len(entry.Data) > 0 {
		if err := ev.Inputs.UnpackIntoMap(values, entry.Data); err != nil {
			r.logger.Debug().Err(err).Str("event", ev.Name).Msg("skipping undecodable log data")
			return nil, false
		}
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, entry.Topics[1:]); err != nil {
		r.logger.Debug().Err(err).Str("event", ev.Name).Msg("skipping undecodable log topics")
		return nil, false
	}

	return buildEvent(ev.Name, entry.Address, values)
}

// DecodeBatch decodes an ordered batch of logs, dropping non-matching
// entries.
func (r *Registry) DecodeBatch(logs []chain.RawLog) []Event {
	events := make([]Event, 0, len(logs))
	for _, entry := range logs {
		if ev, ok := r.Decode(entry); ok {
			events = append(events, ev)
		}
	}
	return events
}

func buildEvent(name string, address common.Address, values map[string]interface{}) (Event, bool) {
	switch name {
	case "MarketUpdate":
		ev := MarketUpdate{Address: address}
		fields := []struct {
			key string
			dst **big.Int
		}{
			{"timestamp", &ev.Timestamp},
			{"floatingDepositShares", &ev.FloatingDepositShares},
			{"floatingAssets", &ev.FloatingAssets},
			{"floatingBorrowShares", &ev.FloatingBorrowShares},
			{"floatingDebt", &ev.FloatingDebt},
		}
		for _, f := range fields {
			v, ok := bigIntValue(values, f.key)
			if !ok {
				return nil, false
			}
			*f.dst = v
		}
		return ev, true
	case "Deposit", "Withdraw", "Borrow", "Repay":
		return buildMovement(movementKind(name), address, values, false)
	case "DepositAtMaturity", "WithdrawAtMaturity", "BorrowAtMaturity", "RepayAtMaturity":
		return buildMovement(movementKind(strings.TrimSuffix(name, "AtMaturity")), address, values, true)
	default:
		return nil, false
	}
}

func buildMovement(kind MovementKind, address common.Address, values map[string]interface{}, fixed bool) (Event, bool) {
	caller, ok := addressValue(values, "caller")
	if !ok {
		return nil, false
	}
	assets, ok := bigIntValue(values, "assets")
	if !ok {
		return nil, false
	}
	ev := AssetMovement{Address: address, Kind: kind, Caller: caller, Assets: assets}
	if fixed {
		maturity, ok := bigIntValue(values, "maturity")
		if !ok {
			return nil, false
		}
		ev.Maturity = maturity
	}
	return ev, true
}

func movementKind(name string) MovementKind {
	switch name {
	case "Deposit":
		return Deposit
	case "Withdraw":
		return Withdraw
	case "Borrow":
		return Borrow
	default:
		return Repay
	}
}

func bigIntValue(values map[string]interface{}, key string) (*big.Int, bool) {
	v, ok := values[key].(*big.Int)
	return v, ok && v != nil
}

func addressValue(values map[string]interface{}, key string) (common.Address, bool) {
	v, ok := values[key].(common.Address)
	return v, ok
}
