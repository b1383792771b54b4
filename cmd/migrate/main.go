// Command migrate applies or rolls back the embedded schema migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/mvshop/internal/storage/postgres"
)

const migrateTimeout = 30 * time.Second

type migrateArgs struct {
	direction string
	steps     int
	dsn       string
}

func parseArgs() migrateArgs {
	var args migrateArgs

	flag.StringVar(&args.direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&args.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&args.dsn, "dsn", "", "PostgreSQL DSN (fallback: POSTGRES_DSN)")
	flag.Parse()

	if strings.TrimSpace(args.dsn) == "" {
		args.dsn = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	}
	args.direction = strings.ToLower(strings.TrimSpace(args.direction))
	return args
}

func main() {
	args := parseArgs()
	if args.dsn == "" {
		fail("POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, args.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	switch args.direction {
	case "up":
		if err := store.MigrateUp(ctx, args.steps); err != nil {
			fail("migrate up failed: %v", err)
		}
		reportStatus(ctx, store, "migrate up ok")
	case "down":
		steps := args.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			fail("migrate down failed: %v", err)
		}
		reportStatus(ctx, store, "migrate down ok")
	case "status":
		reportStatus(ctx, store, "migration status")
	default:
		fail("unsupported direction: %s (use up|down|status)", args.direction)
	}
}

func reportStatus(ctx context.Context, store *postgres.Store, label string) {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		fail("migration status failed: %v", err)
	}
	fmt.Printf("%s: version=%d applied=%d\n", label, version, count)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
