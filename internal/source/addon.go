package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/webtor-io/lazymap"

	"reelscout/internal/catalog"
	"reelscout/internal/httputil"
	"reelscout/internal/media"
	"reelscout/internal/normalize"
)

// Addon queries a JSON stream addon exposing /stream/{type}/{id}.json keyed
// by IMDb id. Only streams with a direct URL are used.
type Addon struct {
	id     string
	name   string
	rank   int
	url    string
	client *http.Client
	cache  *lazymap.LazyMap[*StreamsResponse]
}

var _ catalog.Source = (*Addon)(nil)

// NewAddon creates an addon source.
func NewAddon(id, name, addonURL string, rank int, client *http.Client) *Addon {
	if name == "" {
		name = id
	}
	return &Addon{
		id:     id,
		name:   name,
		rank:   rank,
		url:    strings.TrimSuffix(strings.TrimRight(addonURL, "/"), "/manifest.json"),
		client: client,
		cache: lazymap.New[*StreamsResponse](&lazymap.Config{
			Expire:      1 * time.Minute,
			ErrorExpire: 10 * time.Second,
		}),
	}
}

type StreamBehaviorHints struct {
	Filename     string `json:"filename,omitempty"`
	ProxyHeaders *struct {
		Request map[string]string `json:"request,omitempty"`
	} `json:"proxyHeaders,omitempty"`
}

type StreamItem struct {
	Name          string               `json:"name,omitempty"`
	Title         string               `json:"title,omitempty"`
	Description   string               `json:"description,omitempty"`
	Url           string               `json:"url,omitempty"`
	InfoHash      string               `json:"infoHash,omitempty"`
	BehaviorHints *StreamBehaviorHints `json:"behaviorHints,omitempty"`
}

type StreamsResponse struct {
	Streams []StreamItem `json:"streams"`
}

func (a *Addon) Info() media.SourceDescriptor {
	return media.SourceDescriptor{
		ID:   a.id,
		Name: a.name,
		Rank: a.rank,
	}
}

func (a *Addon) Scrape(ctx context.Context, sc *catalog.Context, d media.Descriptor) (*catalog.SourceOutput, error) {
	if d.IMDbID == "" {
		return nil, catalog.NotFound("addon needs an imdb id")
	}
	contentType, contentID := "movie", d.IMDbID
	if d.Kind == media.Show {
		if d.Season == nil || d.Episode == nil {
			return nil, errors.Wrap(media.ErrInvalidDescriptor, "show without season or episode")
		}
		contentType = "series"
		contentID = fmt.Sprintf("%s:%d:%d", d.IMDbID, d.Season.Number, d.Episode.Number)
	}

	resp, err := a.GetStreams(ctx, contentType, contentID)
	if err != nil {
		return nil, err
	}
	sc.Progress(60)

	stream, ok := a.toStream(resp.Streams)
	if !ok {
		return nil, catalog.NotFound("addon has no direct streams")
	}
	return &catalog.SourceOutput{Stream: stream}, nil
}

// GetStreams fetches the addon's streams for a content id, cached briefly.
func (a *Addon) GetStreams(ctx context.Context, contentType, contentID string) (*StreamsResponse, error) {
	cacheKey := fmt.Sprintf("%s_%s_%s", a.url, contentType, contentID)
	return a.cache.Get(cacheKey, func() (*StreamsResponse, error) {
		return a.fetchStreams(ctx, contentType, contentID)
	})
}

func (a *Addon) fetchStreams(ctx context.Context, contentType, contentID string) (*StreamsResponse, error) {
	streamURL := fmt.Sprintf("%s/stream/%s/%s.json", a.url, contentType, contentID)
	body, err := httputil.GetJSON(ctx, a.client, streamURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch addon streams")
	}

	var resp StreamsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to decode addon response")
	}
	return &resp, nil
}

// toStream normalizes direct-URL streams with the same ranking rules as the
// custom adapters. Headers of the first usable stream are kept.
func (a *Addon) toStream(items []StreamItem) (*media.StreamResult, bool) {
	var mp4, mkv []normalize.Link
	var headers map[string]string
	for _, it := range items {
		if it.Url == "" || httputil.ValidateURL(it.Url) != nil {
			continue
		}
		text := strings.Join([]string{it.Name, it.Title, it.Description}, " ")
		filename := it.Url
		if it.BehaviorHints != nil && it.BehaviorHints.Filename != "" {
			filename = it.BehaviorHints.Filename
		}
		link := normalize.Link{
			Label:  normalize.ClassifyQuality(text),
			Format: normalize.ClassifyFormat(text, filename),
			URL:    it.Url,
		}
		if link.Format == normalize.FormatMKV {
			mkv = append(mkv, link)
		} else {
			mp4 = append(mp4, link)
		}
		if headers == nil && it.BehaviorHints != nil && it.BehaviorHints.ProxyHeaders != nil {
			headers = it.BehaviorHints.ProxyHeaders.Request
		}
	}

	stream, ok := normalize.ToStream(a.id, mp4, mkv)
	if !ok {
		return nil, false
	}
	stream.Headers = headers
	return stream, true
}
