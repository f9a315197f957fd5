package command

import (
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/denlab/denmusic/internal/player"
	"github.com/denlab/denmusic/internal/repository"
	"github.com/denlab/denmusic/internal/resolver"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Router, error) {
		cfg := do.MustInvoke[*config.Config](i)
		c := do.MustInvoke[*coord.Coordinator](i)
		registry := do.MustInvoke[*coord.Registry](i)
		engine := do.MustInvoke[player.Engine](i)
		res := do.MustInvoke[resolver.Resolver](i)
		repo := do.MustInvoke[repository.Repository](i)
		notifier := do.MustInvoke[coord.Notifier](i)
		return NewRouter(cfg, c, registry, engine, res, repo, notifier), nil
	})
}
