package notify

import (
	"github.com/denlab/denmusic/internal/config"
	"github.com/denlab/denmusic/internal/coord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (coord.Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPNotifier(c.LifecycleWebhookURL), nil
	})
}
