package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/infra"
	"server/internal/usage"
)

func main() {
	var (
		idFlag      string
		tierFlag    string
		statusFlag  string
		creditsFlag int
	)

	flag.StringVar(&idFlag, "id", "", "profile ID to update (UUID)")
	flag.StringVar(&tierFlag, "tier", usage.TierBase, "tier to assign (free, base)")
	flag.StringVar(&statusFlag, "status", "active", "subscription status to set (active, canceled, trialing)")
	flag.IntVar(&creditsFlag, "credits", 0, "credit balance to set")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	tier := strings.TrimSpace(tierFlag)

	if userID == "" {
		exitWithError(errors.New("-id is required"))
	}
	switch tier {
	case usage.TierFree, usage.TierBase:
	default:
		exitWithError(fmt.Errorf("unsupported tier %q", tier))
	}
	if creditsFlag < 0 {
		exitWithError(errors.New("-credits must not be negative"))
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("production")
	runner := infra.NewSQLRunner(pool, logger)
	profiles := repo.NewProfileRepository(runner)

	if err := profiles.SetPlan(ctx, userID, tier, strings.TrimSpace(statusFlag), creditsFlag); err != nil {
		exitWithError(fmt.Errorf("set plan: %w", err))
	}

	fmt.Printf("profile %s updated: tier=%s status=%s credits=%d\n", userID, tier, statusFlag, creditsFlag)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "userplan:", err)
	os.Exit(1)
}
