package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux/signal"
	"nyiyui.ca/hato/railflux/store"
	"nyiyui.ca/hato/railflux/tal/layout"
)

func main() {
	defer zap.S().Sync()
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	driver := flag.String("driver", "bunt", "store driver (bunt, sqlite, postgres)")
	dsn := flag.String("dsn", "railflux.db", "store path or connection string")
	flag.Parse()
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := store.Open(ctx, *driver, *dsn)
	if err != nil {
		zap.S().Fatalf("open store: %s", err)
	}
	defer st.Close()
	seed := store.Seed{
		Tracks:  layout.PresetRailflux(),
		Signals: signal.PresetRecords(),
	}
	if err := st.Seed(ctx, seed); err != nil {
		zap.S().Fatalf("seed: %s", err)
	}
	n := 0
	for _, t := range seed.Tracks {
		n += len(t.Segments)
	}
	zap.S().Infow("seeded store", "driver", *driver, "tracks", len(seed.Tracks), "segments", n)
}
