package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "plate-bidding/internal/biddingService"
	"plate-bidding/internal/biddingerrors"
	"plate-bidding/internal/clock"
	"plate-bidding/internal/config"
	"plate-bidding/internal/fanout"
	"plate-bidding/internal/lifecycle"
	"plate-bidding/internal/metrics"
	model "plate-bidding/internal/models"
	"plate-bidding/internal/repository"
	"plate-bidding/internal/server"
	"plate-bidding/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.Server.LogLevel); err != nil {
		utils.Fatal("failed to set log level", map[string]any{"error": err.Error()})
	}

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		utils.Fatal("failed to register metrics", map[string]any{"error": err.Error()})
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"driver": cfg.Store.Driver, "error": err.Error()})
	}

	broadcaster := fanout.NewBroadcaster(fanout.NewRegistry(m), m, fanout.Options{
		QueueSize:   cfg.Fanout.QueueSize,
		IdleTimeout: cfg.Fanout.QueueIdleTimeout,
	})
	supervisor := lifecycle.NewSupervisor(store, broadcaster, clock.SystemClock{},
		lifecycle.WithAmountPrecision(cfg.Auction.Precision()))

	increment, err := cfg.Auction.MinIncrementDecimal()
	if err != nil {
		utils.Fatal("invalid minimum increment", map[string]any{"error": err.Error()})
	}
	biddingSvc := bidding.NewBiddingService(store, supervisor, broadcaster, m, bidding.Options{
		DuplicatePolicy:      cfg.Auction.DuplicatePolicy,
		MinIncrement:         increment,
		AmountPrecision:      cfg.Auction.Precision(),
		EnforceStartingPrice: cfg.Auction.EnforceStartingPrice,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.SeedDemo {
		prepopulateListings(ctx, biddingSvc)
	}

	router := server.SetupRouter(server.Dependencies{
		Service:        biddingSvc,
		Subscriptions:  broadcaster,
		Config:         cfg,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{"addr": srv.Addr, "store": cfg.Store.Driver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}
	broadcaster.Close()
	if err := closeStore(); err != nil {
		utils.Error("failed to close store", map[string]any{"error": err.Error()})
	}
}

// openStore builds the configured persistence backend
func openStore(cfg *config.Config) (repository.AuctionDB, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		repo, err := repository.NewSQLiteRepo(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.StoreMemory:
		return repository.NewMemoryRepo(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// prepopulateListings adds sample listings for local runs
func prepopulateListings(ctx context.Context, svc *bidding.BiddingService) {
	listings := []model.NewListing{
		{PlateNumber: "DXB A 7", Description: "single digit plate", StartingPrice: decimal.NewFromInt(50000), Deadline: time.Now().Add(7 * 24 * time.Hour)},
		{PlateNumber: "AUH 1234", Description: "four digit plate", StartingPrice: decimal.NewFromInt(1000), Deadline: time.Now().Add(3 * 24 * time.Hour)},
		{PlateNumber: "SHJ 55", Description: "repeating digits", StartingPrice: decimal.NewFromInt(7500), Deadline: time.Now().Add(24 * time.Hour)},
	}

	for _, l := range listings {
		created, err := svc.CreateListing(ctx, l, "seed-operator")
		switch {
		case err == nil:
			utils.Info("seeded listing", map[string]any{"listing_id": created.ListingID, "plate_number": created.PlateNumber})
		case errors.Is(err, biddingerrors.ErrPlateNumberTaken):
		default:
			utils.Warn("failed to seed listing", map[string]any{"plate_number": l.PlateNumber, "error": err.Error()})
		}
	}
}
