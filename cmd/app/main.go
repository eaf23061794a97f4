// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"codeberg.org/smsresearch/studyportal/internal/apiclient"
	"codeberg.org/smsresearch/studyportal/internal/config"
	"codeberg.org/smsresearch/studyportal/internal/database"
	"codeberg.org/smsresearch/studyportal/internal/server"
	"codeberg.org/smsresearch/studyportal/internal/services/session"
	"github.com/urfave/cli/v3"
)

// Set via -ldflags at release time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "studyportal",
		Usage:   "Serve the participant verification portal and admin console",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Flags:   config.Flags(),
		Action:  server.Run,
		Commands: []*cli.Command{
			{
				Name:   "genkey",
				Usage:  "Print a random key for session-hash-key or session-block-key",
				Action: genkey,
			},
			{
				Name:   "ping",
				Usage:  "Check that the study backend answers and report enrollment",
				Action: ping,
			},
			{
				Name:  "migrate",
				Usage: "Inspect or roll back the session store schema",
				Commands: []*cli.Command{
					{Name: "version", Usage: "Print the applied schema version", Action: migrateVersion},
					{Name: "down", Usage: "Revert the latest migration", Action: migrateDown},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func genkey(_ context.Context, cmd *cli.Command) error {
	key, err := session.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, key)
	return err
}

func ping(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	api := apiclient.New(cfg.API.BaseURL, apiclient.WithTimeout(cfg.API.Timeout))

	status, err := api.EnrollmentStatus(ctx)
	if err != nil {
		return fmt.Errorf("backend %s: %w", cfg.API.BaseURL, err)
	}
	_, err = fmt.Fprintf(cmd.Root().Writer, "backend %s reachable, enrollment open: %t\n", cfg.API.BaseURL, status.Open())
	return err
}

func migrateVersion(ctx context.Context, cmd *cli.Command) error {
	db, err := database.Open(config.NewFromCLI(cmd).Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	v, err := database.Version(ctx, db.DB)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, v)
	return err
}

func migrateDown(ctx context.Context, cmd *cli.Command) error {
	db, err := database.Open(config.NewFromCLI(cmd).Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.Rollback(ctx, db.DB)
}
