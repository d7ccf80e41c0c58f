// Command positions prints an operator report: open positions in the
// datastore compared against what the exchange actually holds, plus the
// usual risk red flags (missing exits, stale rows, loss concentration).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"trade_engine/internal/helper"
	"trade_engine/internal/models"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/gateway"
	"trade_engine/internal/store"
	"trade_engine/pkg/db"

	"github.com/spf13/viper"
)

func main() {
	viper.SetEnvPrefix("REPORT")
	viper.AutomaticEnv()
	viper.SetDefault("timeout", "30s")
	viper.SetDefault("stale_after", "24h")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	timeout := viper.GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	st := store.NewPositionStore(db.NewPgTxManager(pool))
	gw := gateway.NewClient(cfg)

	open, err := st.ListByStatus(ctx, cfg.AccountID, models.StatusOpen)
	if err != nil {
		log.Fatal(err)
	}

	onVenue, err := gw.GetOpenPositions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exchange unreachable, DB-only report: %v\n", err)
	}

	report(open, onVenue, viper.GetDuration("stale_after"))
}

func report(open []*models.Position, onVenue []gateway.ExchangePosition, staleAfter time.Duration) {
	fmt.Printf("POSITION REPORT  %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Printf("open in db: %d, open on exchange: %d\n\n", len(open), len(onVenue))

	// drift: rows without a venue position and venue positions without a row
	venueBySymbol := make(map[string]gateway.ExchangePosition, len(onVenue))
	for _, ep := range onVenue {
		venueBySymbol[helper.NormalizeSymbol(ep.Symbol)] = ep
	}
	dbBySymbol := make(map[string]bool, len(open))

	var ghosts []*models.Position
	for _, p := range open {
		key := helper.NormalizeSymbol(p.Symbol)
		dbBySymbol[key] = true
		if _, ok := venueBySymbol[key]; !ok && len(onVenue) > 0 {
			ghosts = append(ghosts, p)
		}
	}
	if len(ghosts) > 0 {
		fmt.Printf("GHOSTS — open in db, nothing on the exchange (%d):\n", len(ghosts))
		for _, p := range ghosts {
			fmt.Printf("  #%d %s %s entry=%s\n", p.ID, p.Symbol, p.Side, helper.FormatPrice(p.EntryPrice))
		}
		fmt.Println()
	}

	var untracked []gateway.ExchangePosition
	for _, ep := range onVenue {
		if !dbBySymbol[helper.NormalizeSymbol(ep.Symbol)] {
			untracked = append(untracked, ep)
		}
	}
	if len(untracked) > 0 {
		fmt.Printf("UNTRACKED — on the exchange, no db row (%d):\n", len(untracked))
		for _, ep := range untracked {
			fmt.Printf("  %s %s size=%s upnl=%.2f\n",
				ep.Symbol, ep.Side, helper.FormatSize(ep.Size), ep.UnrealizedPnl)
		}
		fmt.Println()
	}

	// pnl breakdown
	var winners, losers []*models.Position
	var totalPnl float64
	for _, p := range open {
		totalPnl += p.Pnl
		switch {
		case p.Pnl > 0:
			winners = append(winners, p)
		case p.Pnl < 0:
			losers = append(losers, p)
		}
	}
	if len(losers) > 0 {
		sort.Slice(losers, func(i, j int) bool { return losers[i].Pnl < losers[j].Pnl })
		fmt.Printf("worst positions:\n")
		for i, p := range losers {
			if i == 10 {
				break
			}
			fmt.Printf("  %s %s entry=%s pnl=%.2f (%.2f%%)\n",
				p.Symbol, p.Side, helper.FormatPrice(p.EntryPrice), p.Pnl, p.PnlPercent)
		}
		fmt.Println()
	}

	// rows whose protective exit is missing or not synced
	var unprotected, notSynced int
	for _, p := range open {
		if p.ExitOrderID == "" {
			unprotected++
		}
		if p.ExitNotSynced {
			notSynced++
		}
	}

	var stale int
	now := time.Now()
	for _, p := range open {
		if p.OpenedAt != nil && now.Sub(*p.OpenedAt) > staleAfter {
			stale++
		}
	}

	fmt.Println("SUMMARY")
	fmt.Printf("  winning %d / losing %d, total pnl %.2f\n", len(winners), len(losers), totalPnl)
	if len(open) > 0 {
		fmt.Printf("  win rate %.1f%%\n", float64(len(winners))/float64(len(open))*100)
	}
	fmt.Printf("  without resting exit: %d\n", unprotected)
	fmt.Printf("  exit not synced: %d\n", notSynced)
	fmt.Printf("  open longer than %s: %d\n", staleAfter, stale)

	if unprotected > 0 {
		fmt.Println("\nWARNING: positions without a resting exit order — check monitor logs")
	}
	if len(ghosts) > 0 || len(untracked) > 0 {
		fmt.Println("WARNING: db/exchange drift — run with the engine stopped before fixing by hand")
	}
}
