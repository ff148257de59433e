package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/marigold/config"
	"github.com/Ramsey-B/marigold/internal/handlers"
	"github.com/Ramsey-B/marigold/pkg/dashboard"
	"github.com/Ramsey-B/marigold/pkg/ledger"
	"github.com/Ramsey-B/marigold/pkg/money"
)

// ErrNotConfigured means the ledger settings are incomplete.
var ErrNotConfigured = errors.New("ledger is not configured")

const (
	ReportFormatText = "text"
	ReportFormatJSON = "json"
)

// ReportOptions controls a one-shot report.
type ReportOptions struct {
	Format string
	// Wait bounds how long to wait for every subscription to deliver.
	Wait time.Duration
}

// Report connects to the ledger, waits until the dashboard settles and writes the views.
func Report(ctx context.Context, cfg config.Config, logger ectologger.Logger, w io.Writer, opts ReportOptions) error {
	if missing := cfg.MissingLedgerSettings(); len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrNotConfigured, strings.Join(missing, ", "))
	}

	var gateway ledger.Gateway
	switch cfg.LedgerDriver {
	case config.LedgerDriverMemory:
		memory, err := newMemoryLedger(cfg)
		if err != nil {
			return err
		}
		gateway = memory
	case config.LedgerDriverMongo:
		mongo, err := ledger.NewMongo(ctx, cfg, logger)
		if err != nil {
			return err
		}
		gateway = mongo
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", cfg.LedgerDriver)
	}
	defer func() { _ = gateway.Close(context.WithoutCancel(ctx)) }()

	return WriteReport(ctx, gateway, cfg, logger, w, opts)
}

// WriteReport runs a dashboard over gateway until it settles and writes its views.
func WriteReport(ctx context.Context, gateway ledger.Gateway, cfg config.Config, logger ectologger.Logger, w io.Writer, opts ReportOptions) error {
	location, err := cfg.Location()
	if err != nil {
		return err
	}
	formatter, err := money.NewFormatter(cfg.Currency, cfg.Locale)
	if err != nil {
		return err
	}

	d := dashboard.New(gateway, logger, dashboard.Options{Location: location})
	updates, stop := d.Listen()
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	views := settle(ctx, updates, opts.Wait)
	if views == nil {
		views = d.Views()
	}
	if views.Status != dashboard.StatusReady {
		logger.WithContext(ctx).WithFields(map[string]any{"status": views.Status, "errors": len(views.Errors)}).Warn("Reporting views that have not settled")
	}

	presenter := handlers.NewPresenter(formatter)
	if opts.Format == ReportFormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(presenter.Stream(views))
	}
	return writeText(w, presenter, views)
}

// settle returns the first ready views, or the latest ones once wait runs out.
func settle(ctx context.Context, updates <-chan *dashboard.Views, wait time.Duration) *dashboard.Views {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	var latest *dashboard.Views
	for {
		select {
		case views, ok := <-updates:
			if !ok {
				return latest
			}
			latest = views
			if views.Status == dashboard.StatusReady {
				return views
			}
		case <-timeout.C:
			return latest
		case <-ctx.Done():
			return latest
		}
	}
}

func writeText(w io.Writer, presenter *handlers.Presenter, views *dashboard.Views) error {
	summary := presenter.Dashboard(views)
	daily := presenter.Daily(views)

	var b strings.Builder
	fmt.Fprintf(&b, "Status:            %s\n", summary.Status)
	fmt.Fprintf(&b, "Reference date:    %s\n", summary.ReferenceDate)
	fmt.Fprintf(&b, "Students:          %d (%d with dues, %d paid in full)\n", summary.StudentCount, summary.StudentsWithDue, summary.StudentsPaidInFull)
	fmt.Fprintf(&b, "Total paid:        %s\n", summary.TotalPaid.Label)
	fmt.Fprintf(&b, "Total due:         %s\n", summary.TotalDue.Label)
	fmt.Fprintf(&b, "Collected today:   %s (%d payments)\n", daily.Total.Label, len(daily.Entries))
	for _, entry := range daily.Entries {
		fmt.Fprintf(&b, "  %-24s %-16s %s\n", entry.StudentName, entry.PaymentType, entry.Amount.Label)
	}
	for _, err := range summary.Errors {
		fmt.Fprintf(&b, "Failing source:    %s: %s\n", err.Source, err.Message)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
