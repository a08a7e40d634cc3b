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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pickbatch/internal/api"
	"pickbatch/internal/buildinfo"
	"pickbatch/internal/config"
	"pickbatch/internal/controller"
	"pickbatch/internal/integrations"
	"pickbatch/internal/integrations/jsonfile"
	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
	"pickbatch/internal/selector"
	"pickbatch/internal/sink"
	"pickbatch/internal/warehouse"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("PICKBATCH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogging(cfg.Log)
	metrics.RegisterDefault()

	layout := cfg.Layout
	if cfg.LayoutPath != "" {
		f, err := os.Open(cfg.LayoutPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open layout")
		}
		layout, err = warehouse.LoadLayoutJSON(f)
		_ = f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.LayoutPath).Msg("load layout")
		}
	}

	var catalog *warehouse.Catalog
	if cfg.CatalogPath != "" {
		if catalog, err = warehouse.OpenCatalogCSV(cfg.CatalogPath); err != nil {
			log.Fatal().Err(err).Msg("load catalog")
		}
		if !catalog.Covers(layout) {
			log.Warn().Interface("catalog_extent", catalog.Extent()).Interface("layout", layout).
				Msg("catalog has positions outside the layout")
		}
		log.Info().Int("items", catalog.Len()).Str("path", cfg.CatalogPath).Msg("catalog loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		stream sink.Stream = sink.NewBroker()
		sinks              = sink.Multi{sink.Log{}}
		hook   *sink.Webhook
	)
	if cfg.Sinks.RedisURL != "" {
		rb, err := sink.NewRedisBroker(cfg.Sinks.RedisURL, cfg.Sinks.RedisChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("redis broker")
		}
		defer func() { _ = rb.Close() }()
		stream = rb
	}
	sinks = append(sinks, stream)
	if cfg.Sinks.WebhookURL != "" {
		hook = sink.NewWebhook(cfg.Sinks.WebhookURL, cfg.Sinks.WebhookSecret, cfg.Sinks.WebhookMaxAttempts)
		sinks = append(sinks, hook)
	}

	sel := selector.New(cfg.Selector(), layout)
	ctrl := controller.New(sel, sinks, controller.WithTick(cfg.TickInterval()))

	var (
		src     *jsonfile.Source
		initial []model.Order
	)
	if cfg.OrdersPath != "" {
		if catalog == nil {
			log.Fatal().Msg("orders_path needs catalog_path")
		}
		if src, err = jsonfile.Open(cfg.OrdersPath, catalog); err != nil {
			log.Fatal().Err(err).Msg("open orders")
		}
		initial = integrations.TakeInitial(src, cfg.InitialOrderRelease)
		log.Info().Int("initial", len(initial)).Int("queued", src.Len()).Str("source", src.Name()).Msg("order feed ready")
	}

	var enricher api.Enricher
	if catalog != nil {
		enricher = catalog
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(ctrl, enricher, stream, rate.NewLimiter(rate.Limit(cfg.API.IntakeRate), cfg.API.IntakeBurst)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := ctrl.Run(gctx, initial)
		if err == nil {
			// every order released: shut the rest down
			stop()
		}
		return ignoreCanceled(err)
	})
	if hook != nil {
		g.Go(func() error { return ignoreCanceled(hook.Run(gctx)) })
	}
	if src != nil && src.Available() {
		g.Go(func() error {
			limiter := rate.NewLimiter(rate.Every(cfg.FeedEvery()), 1)
			return ignoreCanceled(integrations.Feed(gctx, src, ctrl, limiter))
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", buildinfo.Version).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("batcher stopped")
	}
	log.Info().Msg("batcher stopped")
}

func setupLogging(c config.Log) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
