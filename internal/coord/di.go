package coord

import (
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/player"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Registry, error) {
		return NewRegistry(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Table, error) {
		return NewTable(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Dispatcher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewDispatcher(cfg.EventBufferSize), nil
	})
	do.Provide(injector, func(i do.Injector) (*Coordinator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*Registry](i)
		table := do.MustInvoke[*Table](i)
		notifier := do.MustInvoke[Notifier](i)
		return NewCoordinator(registry, table, notifier, cfg.HandoffTimeout()), nil
	})
	do.Provide(injector, func(i do.Injector) (*Monitor, error) {
		cfg := do.MustInvoke[*config.Config](i)
		c := do.MustInvoke[*Coordinator](i)
		engine := do.MustInvoke[player.Engine](i)
		notifier := do.MustInvoke[Notifier](i)
		return NewMonitor(c, engine, notifier, cfg.EmptyChannelGrace()), nil
	})
}
