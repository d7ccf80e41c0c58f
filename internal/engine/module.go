package engine

import (
	"context"

	"trade_engine/internal/admission"
	"trade_engine/internal/modules/config"
	"trade_engine/internal/modules/gateway"
	"trade_engine/internal/modules/notify"
	"trade_engine/internal/monitor"
	"trade_engine/internal/ordercache"
	"trade_engine/internal/store"
	"trade_engine/internal/trailing"
	"trade_engine/pkg/db"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			store.NewPositionStore,
			func(cfg *config.Config) *ordercache.Cache {
				return ordercache.New(cfg.OrderCacheTTL, cfg.OrderCacheSize)
			},
			func(tm db.TxManager, cfg *config.Config) *admission.Admission {
				return admission.New(tm, cfg.MaxOpenPositions)
			},
			func(gw gateway.Gateway, st *store.PositionStore, cfg *config.Config) *trailing.Engine {
				return trailing.New(gw, st, trailing.Config{
					MinMovePct:    cfg.MinMovePct,
					StopBufferPct: cfg.StopBufferPct,
				})
			},
			func(cfg *config.Config, st *store.PositionStore, gw gateway.Gateway,
				cache *ordercache.Cache, sink notify.Sink, adm *admission.Admission,
				trail *trailing.Engine) *monitor.Monitor {
				return monitor.New(monitor.Config{
					AccountID:         cfg.AccountID,
					EntryTTL:          cfg.EntryTTL,
					LockTimeout:       cfg.LockTimeout,
					CooldownPerSymbol: cfg.CooldownPerSymbol,
				}, st, gw, cache, sink, adm, trail)
			},
			NewSession,
		),
		fx.Invoke(
			func(lc fx.Lifecycle, ctx context.Context, s *Session) {
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						return s.Start(ctx)
					},
					OnStop: func(context.Context) error {
						s.Stop()
						return nil
					},
				})
			},
		),
	)
}
