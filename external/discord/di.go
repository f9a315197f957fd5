package discord

import (
	"github.com/samber/do/v2"

	internaldiscord "github.com/denlab/denmusic/internal/discord"
	"github.com/denlab/denmusic/internal/fleet"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (fleet.AgentFactory, error) {
		return func(id, token string) internaldiscord.Agent {
			return NewAgent(id, token)
		}, nil
	})
}
