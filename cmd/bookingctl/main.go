// Command bookingctl runs front-desk administration against the booking
// database: seeding reference data, confirming, canceling and listing
// appointments, and issuing admin API tokens.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wolfman30/medibook/internal/app/bootstrap"
	"github.com/wolfman30/medibook/internal/appointments"
	"github.com/wolfman30/medibook/internal/audit"
	appconfig "github.com/wolfman30/medibook/internal/config"
	"github.com/wolfman30/medibook/pkg/logging"
)

func main() {
	if err := newRootCmd(openFromConfig).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openFromConfig connects using the same environment as the API server.
func openFromConfig(ctx context.Context, logLevel string) (*app, error) {
	cfg := appconfig.Load()
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := logging.NewWithFormat(logLevel, "text")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	store, err := bootstrap.BuildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location()
	service := appointments.NewService(store.Appointments, logger,
		appointments.WithAudit(audit.NewService(store.AuditDB)),
		appointments.WithLocation(loc),
	)
	return &app{
		store:   store.Appointments,
		service: service,
		loc:     loc,
		secret:  cfg.AdminJWTSecret,
		close:   store.Close,
	}, nil
}
