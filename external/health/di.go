package health

import (
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		c := do.MustInvoke[*coord.Coordinator](i)
		return NewServer(c, cfg.HTTPPort), nil
	})
}
