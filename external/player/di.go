package player

import (
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	playerpkg "github.com/denlab/denmusic/internal/player"
	"github.com/denlab/denmusic/internal/repository"
	"github.com/denlab/denmusic/internal/resolver"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (playerpkg.Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		registry := do.MustInvoke[*coord.Registry](i)
		repo := do.MustInvoke[repository.Repository](i)
		res := do.MustInvoke[resolver.Resolver](i)
		return NewQueuePlayer(registry, repo, res, cfg.DefaultVolume, cfg.DefaultAutoplay), nil
	})
}
