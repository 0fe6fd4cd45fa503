package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/httputil"
	"reelscout/internal/media"
)

// TokenAPI queries a JSON aggregator that authenticates every request with
// an account token. Requests always go out directly, never through a relay,
// since relayed requests break the token flow.
type TokenAPI struct {
	base        string
	client      *http.Client
	userToken   func() string
	sharedToken string
}

var _ Adapter = (*TokenAPI)(nil)

// NewTokenAPI creates the adapter. userToken is consulted on every scrape and
// wins over sharedToken.
func NewTokenAPI(base string, client *http.Client, userToken func() string, sharedToken string) *TokenAPI {
	return &TokenAPI{
		base:        strings.TrimRight(base, "/"),
		client:      client,
		userToken:   userToken,
		sharedToken: sharedToken,
	}
}

// TokenAPIResult is the raw JSON payload.
type TokenAPIResult struct {
	Links     []TokenAPILink     `json:"links"`
	Subtitles []TokenAPISubtitle `json:"subtitles"`
}

type TokenAPILink struct {
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

type TokenAPISubtitle struct {
	ID                  string `json:"id"`
	Language            string `json:"language"`
	URL                 string `json:"url"`
	Format              string `json:"format"`
	HasCORSRestrictions bool   `json:"hasCorsRestrictions"`
}

// Success reports whether the API returned at least one link.
func (r *TokenAPIResult) Success() bool {
	return r != nil && len(r.Links) > 0 && r.Links[0].URL != ""
}

func (t *TokenAPI) Source() media.SourceDescriptor {
	return media.SourceDescriptor{
		ID:     "tokenapi",
		Name:   "TokenAPI",
		Rank:   190,
		Custom: true,
	}
}

func (t *TokenAPI) ScrapeMovie(ctx context.Context, d media.Descriptor) (Payload, error) {
	return t.fetch(ctx, "movie", d, nil)
}

func (t *TokenAPI) ScrapeShow(ctx context.Context, d media.Descriptor) (Payload, error) {
	if d.Season == nil || d.Episode == nil {
		return nil, errors.Wrap(media.ErrInvalidDescriptor, "tokenapi needs season and episode")
	}
	q := url.Values{}
	q.Set("season", strconv.Itoa(d.Season.Number))
	q.Set("episode", strconv.Itoa(d.Episode.Number))
	return t.fetch(ctx, "show", d, q)
}

// Normalize stores the first link, assumed best, as the unknown quality and
// copies every subtitle into the captions.
func (t *TokenAPI) Normalize(p Payload) (*media.StreamResult, bool) {
	res, ok := p.(*TokenAPIResult)
	if !ok || !res.Success() {
		return nil, false
	}

	stream := media.NewFileStream(t.Source().ID)
	first := res.Links[0]
	stream.SetQuality(media.QualityUnknown, media.File{
		Format: formatFromURL(first.URL),
		URL:    first.URL,
	})
	for _, s := range res.Subtitles {
		stream.Captions = append(stream.Captions, media.Caption{
			ID:                  s.ID,
			Language:            s.Language,
			URL:                 s.URL,
			Format:              s.Format,
			HasCORSRestrictions: s.HasCORSRestrictions,
		})
	}
	return stream, true
}

// token returns the per-user token, else the shared fallback.
func (t *TokenAPI) token() string {
	if t.userToken != nil {
		if tok := strings.TrimSpace(t.userToken()); tok != "" {
			return tok
		}
	}
	return strings.TrimSpace(t.sharedToken)
}

func (t *TokenAPI) fetch(ctx context.Context, kind string, d media.Descriptor, q url.Values) (Payload, error) {
	tok := t.token()
	if tok == "" {
		log.WithField("adapter", t.Source().ID).Debug("no token configured, skipping request")
		return &TokenAPIResult{}, nil
	}

	id := d.IMDbID
	if id == "" {
		id = d.ExternalID
	}
	apiURL := t.base + "/api/" + kind + "/" + url.PathEscape(id)
	if len(q) > 0 {
		apiURL += "?" + q.Encode()
	}

	body, err := httputil.GetJSON(ctx, t.client, apiURL, map[string]string{
		"Authorization": "Bearer " + tok,
	})
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			log.WithFields(log.Fields{"adapter": t.Source().ID, "status": se.Code}).Debug("token api refused request")
			return &TokenAPIResult{}, nil
		}
		return nil, err
	}

	var res TokenAPIResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "parsing token api response")
	}
	return &res, nil
}

// formatFromURL returns the file extension of u, "mp4" when it has none.
func formatFromURL(u string) string {
	if parsed, err := url.Parse(u); err == nil {
		u = parsed.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u)), ".")
	switch ext {
	case "mkv", "mp4", "webm", "avi":
		return ext
	default:
		return "mp4"
	}
}
