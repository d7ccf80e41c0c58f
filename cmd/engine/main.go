package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"trade_engine/internal/engine"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/gateway"
	"trade_engine/internal/modules/notify"
	"trade_engine/internal/modules/postgres"
	"trade_engine/internal/modules/stream"
	"trade_engine/pkg/logger"
	"trade_engine/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

func main() {
	logger.SetServiceName("trade_engine")
	if err := logger.Init(os.Getenv("DEBUG") != ""); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		gateway.Module(),
		stream.Module(),
		notify.Module(),
		engine.Module(),
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config) error {
				tracing.SetServiceName("trade_engine")
				_, closeTracer, err := tracing.InitTracer(tracing.Config{
					Host: cfg.Jaeger.Host,
					Port: cfg.Jaeger.Port,
				})
				if err != nil {
					return err
				}
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						closeTracer()
						return nil
					},
				})
				return nil
			},
			func(cfg *config.Config) {
				if cfg.Service.MetricsPort == 0 {
					return
				}
				go func() {
					addr := fmt.Sprintf(":%d", cfg.Service.MetricsPort)
					http.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(addr, nil); err != nil {
						logger.Error("metrics listener: %v", err)
					}
				}()
			},
		),
	)
	app.Run()
}
