package notify

import (
	"trade_engine/internal/modules/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) (Sink, error) {
				if cfg.Telegram.Token == "" {
					return NewStdout(), nil
				}
				return NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			},
		),
	)
}
