// Command hookfreight-server is the single-binary HookFreight process:
// it serves the capture endpoint, runs the delivery scheduler/worker pool,
// and exposes the read/replay API, all under one supervised process
// (SPEC_FULL.md §5). Grounded on the teacher's cmd/outpost command-tree
// shape, trimmed of its binary-delegation indirection since this system
// ships as one binary rather than a family of outpost-server/migrate-redis
// executables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hookfreight/hookfreight/internal/app"
	"github.com/hookfreight/hookfreight/internal/config"
	"github.com/hookfreight/hookfreight/internal/dbx"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "hookfreight-server",
		Usage: "HookFreight webhook capture and delivery relay",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the capture endpoint, delivery worker pool, and read API",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runServe(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Apply pending Postgres schema migrations and exit",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runMigrate(ctx)
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.New(cfg).Run(ctx)
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, err := dbx.NewMigrator(cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Up(ctx)
}
