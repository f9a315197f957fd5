package resolver

import (
	"context"

	"github.com/denlab/denmusic/internal/config"
	resolverpkg "github.com/denlab/denmusic/internal/resolver"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (resolverpkg.Resolver, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewYouTubeResolver(context.Background(), cfg.YouTubeAPIKey)
	})
}
