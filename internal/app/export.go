package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"lending-alerts/internal/format"
	"lending-alerts/internal/rules"
	"lending-alerts/internal/snapshot"
)

// Export renders the current per-market utilization report as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	account := common.Address{}
	if opts.Account != "" {
		if !common.IsHexAddress(opts.Account) {
			return fmt.Errorf("invalid account address %q", opts.Account)
		}
		account = common.HexToAddress(opts.Account)
	}

	rpc, err := a.dialClient(ctx, a.Config.Ethereum.RPCURL)
	if err != nil {
		return err
	}
	defer rpc.Close()

	reader, err := a.newReader(rpc)
	if err != nil {
		return err
	}

	snap, err := reader.Snapshot(ctx, nil, account)
	if err != nil {
		return err
	}
	if len(snap.Markets) == 0 {
		a.Logger.Info().Msg("no markets in snapshot")
		return nil
	}

	a.Logger.Info().Int("markets", len(snap.Markets)).Msg("exporting utilization report")

	if opts.CSVPath != "" {
		if err := writeUtilizationCSV(opts.CSVPath, snap.Markets); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeUtilizationPNG(opts.PNGPath, snap.Markets); err != nil {
			return err
		}
	}

	return nil
}

func writeUtilizationCSV(path string, markets []snapshot.MarketSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"market", "symbol", "global_utilization", "floating_utilization", "floating_deposits", "floating_borrows", "usd_price"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, market := range markets {
		global, floating, ok := rules.Utilization(market)
		globalStr, floatingStr := "", ""
		if ok {
			globalStr = format.Percent(global)
			floatingStr = format.Percent(floating)
		}
		record := []string{
			market.Market.Hex(),
			market.AssetSymbol,
			globalStr,
			floatingStr,
			format.Units(market.TotalFloatingDepositAssets, market.Decimals),
			format.Units(market.TotalFloatingBorrowAssets, market.Decimals),
			format.USD(market.UsdPrice),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeUtilizationPNG(path string, markets []snapshot.MarketSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(markets))
	for _, market := range markets {
		global, _, ok := rules.Utilization(market)
		if !ok {
			continue
		}
		bars = append(bars, chart.Value{
			Label: market.AssetSymbol,
			Value: utilizationPercent(global),
		})
	}
	if len(bars) == 0 {
		return errors.New("no market has floating deposits; nothing to chart")
	}

	graph := chart.BarChart{
		Title:    "Global utilization (%)",
		Width:    1280,
		Height:   720,
		BarWidth: 60,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.1f")
			},
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func utilizationPercent(scaled *big.Int) float64 {
	return decimal.NewFromBigInt(scaled, -18).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
