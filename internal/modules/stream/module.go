package stream

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("stream",
		fx.Provide(
			NewClient,
		),
	)
}
