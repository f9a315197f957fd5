package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/denlab/denmusic/internal/player"
	resolverpkg "github.com/denlab/denmusic/internal/resolver"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	musicVideoCategoryID = "10"
	searchMaxResults     = 5
)

type YouTubeResolver struct {
	svc *youtube.Service
}

// NewYouTubeResolver builds a resolver over the YouTube Data API. With an
// empty API key only direct watch URLs and bare video ids resolve; text
// search reports an error asking for a key.
func NewYouTubeResolver(ctx context.Context, apiKey string) (resolverpkg.Resolver, error) {
	if apiKey == "" {
		slog.Warn("YOUTUBE_API_KEY is not set; text search and autoplay suggestions are disabled")
		return &YouTubeResolver{}, nil
	}
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}
	return &YouTubeResolver{svc: svc}, nil
}

func (r *YouTubeResolver) Resolve(ctx context.Context, query, requestedBy string) (*player.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, resolverpkg.ErrNoResults
	}

	if videoID, ok := extractVideoID(query); ok {
		if r.svc == nil {
			return &player.Track{
				ID:          videoID,
				Title:       videoID,
				URL:         watchURL(videoID),
				RequestedBy: requestedBy,
			}, nil
		}
		return r.videoDetails(ctx, videoID, requestedBy)
	}

	if r.svc == nil {
		return nil, fmt.Errorf("search requires YOUTUBE_API_KEY: %w", resolverpkg.ErrNoResults)
	}
	videoID, err := r.search(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.videoDetails(ctx, videoID, requestedBy)
}

// Related suggests a follow-up track for autoplay by searching on the
// artist and title keywords, skipping the track itself.
func (r *YouTubeResolver) Related(ctx context.Context, track player.Track) (*player.Track, error) {
	if r.svc == nil {
		return nil, resolverpkg.ErrNoResults
	}
	query := strings.TrimSpace(track.Artist + " " + track.Title)
	if query == "" {
		return nil, resolverpkg.ErrNoResults
	}
	call := r.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		VideoCategoryId(musicVideoCategoryID).
		MaxResults(searchMaxResults).
		Order("relevance").
		Context(ctx)
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube related search failed: %w", err)
	}
	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" || item.Id.VideoId == track.ID {
			continue
		}
		return r.videoDetails(ctx, item.Id.VideoId, track.RequestedBy)
	}
	return nil, resolverpkg.ErrNoResults
}

func (r *YouTubeResolver) search(ctx context.Context, query string) (string, error) {
	call := r.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		VideoCategoryId(musicVideoCategoryID).
		MaxResults(searchMaxResults).
		Order("relevance").
		Context(ctx)
	resp, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube search failed: %w", err)
	}
	for _, item := range resp.Items {
		if item != nil && item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId, nil
		}
	}
	return "", resolverpkg.ErrNoResults
}

func (r *YouTubeResolver) videoDetails(ctx context.Context, videoID, requestedBy string) (*player.Track, error) {
	resp, err := r.svc.Videos.List([]string{"snippet", "contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube video lookup failed: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0] == nil {
		return nil, resolverpkg.ErrNoResults
	}
	item := resp.Items[0]
	track := &player.Track{
		ID:          videoID,
		URL:         watchURL(videoID),
		RequestedBy: requestedBy,
	}
	if item.Snippet != nil {
		track.Title = item.Snippet.Title
		track.Artist = item.Snippet.ChannelTitle
	}
	if track.Title == "" {
		track.Title = videoID
	}
	if item.ContentDetails != nil {
		track.Duration = parseISODuration(item.ContentDetails.Duration)
	}
	return track, nil
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// extractVideoID recognizes watch URLs, youtu.be short links and bare
// 11-character video ids.
func extractVideoID(query string) (string, bool) {
	if isVideoID(query) {
		return query, true
	}
	u, err := url.Parse(query)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); isVideoID(id) {
			return id, true
		}
		if strings.HasPrefix(u.Path, "/shorts/") {
			if id := strings.TrimPrefix(u.Path, "/shorts/"); isVideoID(id) {
				return id, true
			}
		}
	case "youtu.be":
		if id := strings.TrimPrefix(u.Path, "/"); isVideoID(id) {
			return id, true
		}
	}
	return "", false
}

func isVideoID(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}

// parseISODuration parses the ISO-8601 durations the API returns, e.g.
// PT3M52S or PT1H2M3S. Malformed input yields zero.
func parseISODuration(raw string) time.Duration {
	raw = strings.TrimPrefix(raw, "P")
	var days int64
	if i := strings.IndexByte(raw, 'T'); i >= 0 {
		if d, ok := leadingNumberBefore(raw[:i], 'D'); ok {
			days = d
		}
		raw = raw[i+1:]
	}
	var total time.Duration
	total += time.Duration(days) * 24 * time.Hour
	var n int64
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int64(c-'0')
			continue
		}
		switch c {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0
		}
		n = 0
	}
	return total
}

func leadingNumberBefore(s string, unit byte) (int64, bool) {
	i := strings.IndexByte(s, unit)
	if i <= 0 {
		return 0, false
	}
	var n int64
	for _, c := range s[:i] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}
