package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"lending-alerts/internal/campaign"
	"lending-alerts/internal/storage"
)

// ShowCampaign prints the audit record of the most recent campaign run.
func (a *App) ShowCampaign(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show campaign results")
	}
	defer closeStore()

	var record campaign.RunRecord
	if err := store.GetJSON(ctx, campaign.RecordKey, &record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintln(os.Stdout, "no campaign run recorded")
			return nil
		}
		return err
	}

	fmt.Fprintf(os.Stdout, "run %s at %s (%d notifications)\n",
		record.RunID,
		time.Unix(record.LastRun, 0).UTC().Format(time.RFC3339),
		len(record.Notifications),
	)
	if len(record.Notifications) == 0 {
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Subscriber\tSymbol\tMaturity\tTotal debt\tSent\tError")

	for _, outcome := range record.Notifications {
		sent := "no"
		if outcome.SuccessfullySent {
			sent = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			outcome.Subscriber,
			outcome.Symbol,
			outcome.MaturityISO,
			outcome.TotalDebt,
			sent,
			sanitizeInline(outcome.Error),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
