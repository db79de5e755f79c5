package notify

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"lending-alerts/internal/chain"
	"lending-alerts/internal/decoder"
	"lending-alerts/internal/format"
	"lending-alerts/internal/rules"
)

// RenderContext carries the per-invocation data shared by every rendered
// message.
type RenderContext struct {
	Network   chain.Network
	TxHash    common.Hash
	Sender    string
	Icons     map[string]string
	Timestamp time.Time
}

// RenderIntents turns rule intents into routed channel messages, in intent
// order.
func RenderIntents(intents []rules.Intent, rc RenderContext) []Routed {
	routed := make([]Routed, 0, len(intents))
	for _, intent := range intents {
		switch it := intent.(type) {
		case rules.UtilizationBreach:
			routed = append(routed, Routed{Destination: DestMonitoring, Message: renderUtilization(it, rc)})
		case rules.FixedRateArbitrage:
			routed = append(routed, Routed{Destination: DestMonitoring, Message: renderArbitrage(it, rc)})
		case rules.WhaleMovement:
			routed = append(routed, Routed{Destination: DestWhaleAlert, Message: renderWhale(it, rc)})
		case rules.RawActivity:
			routed = append(routed, Routed{Destination: DestTransactions, Message: renderActivity(it, rc)})
		}
	}
	return routed
}

func renderUtilization(it rules.UtilizationBreach, rc RenderContext) Message {
	return Message{
		Title:  fmt.Sprintf("%s utilization at %s", it.Symbol, format.Percent(it.GlobalUtilization)),
		Link:   rc.Network.TxURL(rc.TxHash),
		Author: rc.Sender,
		Color:  "danger",
		Fields: []Field{
			{Label: "global utilization", Value: format.Percent(it.GlobalUtilization), Short: true},
			{Label: "floating utilization", Value: format.Percent(it.FloatingUtilization), Short: true},
			{Label: "threshold", Value: format.Percent(it.Threshold), Short: true},
		},
		FooterIcon: rc.Icons[it.Symbol],
		FooterText: rc.Network.Name(),
		Timestamp:  rc.Timestamp,
	}
}

func renderArbitrage(it rules.FixedRateArbitrage, rc RenderContext) Message {
	return Message{
		Title: fmt.Sprintf("%s fixed rate arbitrage at %s", it.Symbol, format.Maturity(it.Maturity)),
		Link:  rc.Network.TxURL(rc.TxHash),
		Color: "warning",
		Fields: []Field{
			{Label: "maturity", Value: format.Maturity(it.Maturity), Short: true},
			{Label: "deposit rate", Value: format.Percent(it.DepositRate), Short: true},
			{Label: "min borrow rate", Value: format.Percent(it.MinBorrowRate), Short: true},
		},
		FooterIcon: rc.Icons[it.Symbol],
		FooterText: rc.Network.Name(),
		Timestamp:  rc.Timestamp,
	}
}

func renderWhale(it rules.WhaleMovement, rc RenderContext) Message {
	fields := []Field{
		{Label: "amount", Value: format.Amount(it.Assets, it.Decimals, it.Symbol), Short: true},
		{Label: "usd value", Value: format.USD(it.UsdValue), Short: true},
		{Label: "gas cost", Value: format.Amount(it.GasCost, 18, rc.Network.NativeSymbol()), Short: true},
	}
	if it.Maturity != nil {
		fields = append(fields, Field{Label: "maturity", Value: format.Maturity(it.Maturity), Short: true})
	}
	fields = append(fields, Field{Label: "account", Value: accountLabel(rc.Sender, it.Caller)})

	return Message{
		Title:      fmt.Sprintf("%s whale %s", it.Symbol, it.Kind),
		Link:       rc.Network.TxURL(rc.TxHash),
		Author:     rc.Sender,
		Color:      movementColor(it.Kind),
		Fields:     fields,
		FooterIcon: rc.Icons[it.Symbol],
		FooterText: rc.Network.Name(),
		Timestamp:  rc.Timestamp,
	}
}

func renderActivity(it rules.RawActivity, rc RenderContext) Message {
	fields := []Field{
		{Label: "amount", Value: format.Amount(it.Assets, it.Decimals, it.Symbol), Short: true},
	}
	if it.Maturity != nil {
		fields = append(fields, Field{Label: "maturity", Value: format.Maturity(it.Maturity), Short: true})
	}
	fields = append(fields, Field{Label: "account", Value: accountLabel(rc.Sender, it.Caller)})

	return Message{
		Title:      fmt.Sprintf("%s %s", it.Symbol, it.Kind),
		Link:       rc.Network.TxURL(rc.TxHash),
		Fields:     fields,
		FooterIcon: rc.Icons[it.Symbol],
		FooterText: rc.Network.Name(),
		Timestamp:  rc.Timestamp,
	}
}

func movementColor(kind decoder.MovementKind) string {
	switch kind {
	case decoder.Deposit, decoder.Repay:
		return "good"
	default:
		return "danger"
	}
}

func accountLabel(resolvedName string, caller common.Address) string {
	if resolvedName != "" {
		return resolvedName
	}
	return caller.Hex()
}
