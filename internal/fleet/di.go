package fleet

import (
	"github.com/samber/do/v2"

	"github.com/denlab/denmusic/internal/command"
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Fleet, error) {
		return NewFleet(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[*coord.Registry](i),
			do.MustInvoke[*coord.Dispatcher](i),
			do.MustInvoke[*command.Router](i),
			do.MustInvoke[AgentFactory](i),
		), nil
	})
}
