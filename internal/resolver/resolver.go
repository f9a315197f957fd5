package resolver

import (
	"context"
	"errors"

	"github.com/denlab/denmusic/internal/player"
)

var ErrNoResults = errors.New("no matching track found")

// Resolver turns a user query (search terms, a watch URL, or a bare video
// id) into track metadata, and suggests a follow-up track for autoplay.
type Resolver interface {
	Resolve(ctx context.Context, query, requestedBy string) (*player.Track, error)
	Related(ctx context.Context, track player.Track) (*player.Track, error)
}
