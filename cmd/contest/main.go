// Package main provides the entry point for the inscription contest service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"inscription-contest/internal/admin"
	"inscription-contest/internal/chain"
	"inscription-contest/internal/config"
	dbpkg "inscription-contest/internal/db"
	"inscription-contest/internal/engine"
	"inscription-contest/internal/inscriber"
	"inscription-contest/internal/ledger"
	"inscription-contest/internal/logger"
	"inscription-contest/internal/market"
	"inscription-contest/internal/models"
	"inscription-contest/internal/monitor"
	"inscription-contest/internal/tui"
	"inscription-contest/internal/wallet"
)

const (
	statusChannelBufferSize = 8
	tuiCloseDelay           = 200 * time.Millisecond
)

func main() {
	// Try to load .env from CWD if present; otherwise use environment as-is
	if _, statErr := os.Stat(".env"); statErr == nil {
		_ = godotenv.Load(".env")
	}

	cfg := config.Load()

	// If debug logs are enabled, write them to file to avoid interfering with TUI
	var logWriter io.Writer = os.Stderr
	if cfg.Debug {
		logFile, err := os.OpenFile("contest.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			logWriter = logFile
			fmt.Fprintf(os.Stderr, "Debug logs written to contest.log\n")
		} else {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file, logs will go to stderr (may interfere with TUI): %v\n", err)
		}
	}

	log := logger.NewWithWriter(cfg.Debug, logWriter)

	fmt.Printf("Inscription contest starting...\n")
	fmt.Printf("Config loaded: %s\n", cfg.DebugString())

	gormDB, err := dbpkg.Open(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if gormDB == nil {
		log.Fatalf("DATABASE_URL is required: the checkpoint and the competition ledger live there")
	}
	log.Printf("DB connected")

	if err := dbpkg.AutoMigrate(gormDB); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	log.Printf("Migrations applied")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := ledger.NewStore(gormDB)
	clk := clock.NewDefaultClock()

	chainClient := chain.NewClient(cfg.ChainAPIURL)
	marketClient := market.NewClient(cfg.MarketAPIURL, cfg.MarketAPIKey)
	walletClient := wallet.NewClient(cfg.WalletAPIURL)

	eng := engine.New(store, engine.Config{
		LeaderboardMinBlocks: cfg.LeaderboardMinBlocks,
		MaxLeaderBlocks:      cfg.MaxLeaderBlocks,
		DethroneStatus:       dethroneStatus(cfg.EliminationPolicy),
		SweepContenders:      cfg.SweepContenders,
	}, clk, log)

	orders := inscriber.New(store, marketClient, walletClient, inscriber.Config{
		FeeRate:       cfg.InscribeFeeRate,
		Postage:       cfg.InscribePostage,
		FailureStatus: failureStatus(cfg.FailurePolicy),
	}, ticker.New(cfg.ReconcileInterval), log)

	// Channel for TUI updates; unused when running in debug mode.
	var updateCh chan monitor.Status
	if !cfg.Debug {
		updateCh = make(chan monitor.Status, statusChannelBufferSize)
	}

	mon := monitor.New(chainClient, eng, orders, store,
		ticker.New(cfg.PollInterval), clk, updateCh, log)

	var stopAdmin func()
	if cfg.AdminToken != "" {
		stopAdmin = admin.NewServer(eng, mon, cfg.AdminToken, log).Start(cfg.AdminListen)
		log.Printf("Admin facade listening on %s", cfg.AdminListen)
	} else {
		log.Printf("ADMIN_TOKEN not set - admin facade disabled")
	}

	if !cfg.Debug {
		// Start TUI in a goroutine
		go func() {
			if err := tui.Run(updateCh); err != nil {
				log.Printf("TUI error: %v", err)
			}
			// TUI exited, cancel context to trigger shutdown
			cancel()
		}()
	}

	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		if err := mon.Run(ctx); err != nil {
			log.Printf("monitor stopped: %v", err)
			cancel()
		}
	}()
	go func() {
		if err := orders.Run(ctx); err != nil {
			log.Printf("reconciler stopped: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	if stopAdmin != nil {
		stopAdmin()
	}

	// Wait for the monitor to drain its in-flight poll before closing the
	// update channel it publishes to.
	<-monDone

	if updateCh != nil {
		// Close TUI update channel to stop sending updates
		close(updateCh)
		// Give TUI a moment to process the close and quit
		time.Sleep(tuiCloseDelay)
	}

	// Ensure logs flushed in some environments
	_ = os.Stderr.Sync()
	_ = os.Stdout.Sync()
}

func dethroneStatus(p config.EliminationPolicy) models.ProposalStatus {
	if p == config.EliminateReject {
		return models.StatusRejected
	}
	return models.StatusExpired
}

func failureStatus(p config.FailurePolicy) models.ProposalStatus {
	if p == config.FailureReject {
		return models.StatusRejected
	}
	return models.StatusActive
}
