package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"nyiyui.ca/hato/railflux/config"
	"nyiyui.ca/hato/railflux/kujo"
	"nyiyui.ca/hato/railflux/overlay"
	"nyiyui.ca/hato/railflux/render"
	rfsignal "nyiyui.ca/hato/railflux/signal"
	"nyiyui.ca/hato/railflux/store"
	"nyiyui.ca/hato/railflux/tal"
	"nyiyui.ca/hato/railflux/tal/layout"
)

func main() {
	defer zap.S().Sync()
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	configPath := flag.String("config", "railflux.yml", "path to config file")
	flag.Parse()
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)

	conf, err := config.Load(*configPath)
	if err != nil {
		zap.S().Fatalf("load config: %s", err)
	}
	if err := run(conf); err != nil && !errors.Is(err, context.Canceled) {
		zap.S().Fatalf("%s", err)
	}
}

func run(conf config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, conf.Store.Driver, conf.Store.DSN)
	if err != nil {
		return err
	}
	if conf.Seed {
		err := st.Seed(ctx, store.Seed{Tracks: layout.PresetRailflux(), Signals: rfsignal.PresetRecords()})
		if err != nil {
			st.Close()
			return err
		}
		zap.S().Infof("seeded %s store", conf.Store.Driver)
	}
	link := store.NewLink(st, conf.PollInterval)
	defer func() {
		if err := link.Close(); err != nil {
			zap.S().Errorw("close store", "err", err)
		}
	}()

	y := layout.New(conf.CellSize, nil)
	n, err := store.Load(ctx, st, y)
	if err != nil {
		return err
	}
	if n == 0 {
		zap.S().Warnf("store has no segments; loading preset layout")
		for _, t := range layout.PresetRailflux() {
			y.LoadSegments(t.ID, t.Segments)
		}
	}
	y.SetWriter(link)

	records, err := st.Signals(ctx)
	if err != nil {
		zap.S().Warnw("read signals", "err", err)
	}
	crossings := conf.Crossings
	if crossings == nil {
		crossings = rfsignal.PresetCrossings()
	}

	var labels []overlay.Label
	if conf.Labels != "" {
		labels, err = overlay.Load(conf.Labels, conf.CellSize)
		if err != nil {
			zap.S().Warnw("load labels", "path", conf.Labels, "err", err)
		}
	}

	renderers := render.Multi{}
	var quit <-chan struct{}
	if conf.Terminal {
		term, err := render.NewTerminal()
		if err != nil {
			return err
		}
		defer term.Close()
		renderers = append(renderers, term)
		quit = term.Quit()
	}

	sim := tal.NewSimulator(y, tal.SimulatorConf{
		TickInterval: conf.TickInterval(),
		Source:       link,
		Resolver:     rfsignal.Resolver{CellSize: conf.CellSize, Crossings: crossings},
		Signals:      records,
		Labels:       labels,
		Renderer:     renderers,
	})
	for _, tc := range conf.Trains {
		_, err := sim.AddTrain(tal.TrainConf{
			ID:      tc.ID,
			Speed:   tc.Speed,
			Wagons:  tc.Wagons,
			Spacing: tc.Spacing,
		}, tc.Track, tc.Reverse)
		if err != nil {
			zap.S().Warnw("skipping train", "err", err)
		}
	}

	if conf.HTTP.Addr != "" {
		k := kujo.NewServer(sim, kujo.Conf{CORSOrigins: conf.HTTP.CORSOrigins})
		defer k.Close()
		srv := &http.Server{Addr: conf.HTTP.Addr, Handler: k.Handler()}
		go func() {
			zap.S().Infof("starting kujo on %s…", conf.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.S().Errorw("kujo", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-quit:
			cancel()
		case <-ctx.Done():
		}
	}()
	zap.S().Infof("starting simulation…")
	return sim.Run(ctx)
}
