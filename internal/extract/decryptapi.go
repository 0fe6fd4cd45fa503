package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"

	"reelscout/internal/catalog"
	"reelscout/internal/httputil"
	"reelscout/internal/media"
	"reelscout/internal/normalize"
)

// DecryptAPI resolves UpCloud embeds through a hosted decryption API.
type DecryptAPI struct {
	client *http.Client
	apiURL string
}

var _ catalog.Embed = (*DecryptAPI)(nil)

// NewDecryptAPI creates the embed for the API at apiURL.
func NewDecryptAPI(apiURL string, client *http.Client) *DecryptAPI {
	return &DecryptAPI{
		client: client,
		apiURL: strings.TrimRight(apiURL, "/"),
	}
}

func (d *DecryptAPI) Info() media.SourceDescriptor {
	return media.SourceDescriptor{
		ID:   "upcloud",
		Name: "UpCloud",
		Rank: 400,
	}
}

// apiSource accepts both the file/label and url/quality spellings.
type apiSource struct {
	File    string `json:"file"`
	URL     string `json:"url"`
	Label   string `json:"label"`
	Quality string `json:"quality"`
	Type    string `json:"type"`
	IsM3U8  bool   `json:"isM3U8"`
}

func (s apiSource) link() string {
	if s.File != "" {
		return s.File
	}
	return s.URL
}

func (s apiSource) label() string {
	if s.Quality != "" {
		return s.Quality
	}
	return s.Label
}

type apiSubtitle struct {
	URL      string `json:"url"`
	Language string `json:"lang"`
	Label    string `json:"label"`
}

type apiResponse struct {
	Sources   []apiSource   `json:"sources"`
	Tracks    []track       `json:"tracks"`
	Subtitles []apiSubtitle `json:"subtitles"`
}

// Scrape asks the API to decrypt embedURL. Direct files become a per-quality
// file stream; otherwise the adaptive playlist is returned.
func (d *DecryptAPI) Scrape(ctx context.Context, sc *catalog.Context, embedURL string) (*media.StreamResult, error) {
	if err := httputil.ValidateURL(embedURL); err != nil {
		return nil, errors.Wrap(err, "invalid embed URL")
	}

	body, err := httputil.GetJSON(ctx, d.client, d.apiURL+"/?url="+url.QueryEscape(embedURL), nil)
	if err != nil {
		return nil, errors.Wrap(err, "decryption API request")
	}
	sc.Progress(50)

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "parsing decryption response")
	}

	stream := toAPIStream(resp)
	if stream.Empty() {
		return nil, catalog.NotFound("no sources returned from decryption API")
	}
	return stream, nil
}

func toAPIStream(resp apiResponse) *media.StreamResult {
	captions := captionsFrom("upcloud", resp.Tracks)
	for _, sub := range resp.Subtitles {
		if sub.URL == "" {
			continue
		}
		lang := sub.Label
		if lang == "" {
			lang = sub.Language
		}
		captions = append(captions, media.Caption{
			ID:       "upcloud-" + httputil.Slugify(lang),
			Language: lang,
			URL:      sub.URL,
			Format:   captionFormat(sub.URL),
		})
	}

	var playlists []apiSource
	files := media.NewFileStream("")
	for _, s := range resp.Sources {
		link := s.link()
		if link == "" {
			continue
		}
		if s.IsM3U8 || isPlaylist(link, s.Type) {
			playlists = append(playlists, s)
			continue
		}
		format := strings.TrimPrefix(strings.ToLower(path.Ext(strings.SplitN(link, "?", 2)[0])), ".")
		if format == "" {
			format = "mp4"
		}
		files.SetQuality(normalize.QualityFromLabel(s.label()), media.File{Format: format, URL: link})
	}
	files.Captions = captions
	if !files.Empty() {
		return files
	}

	stream := &media.StreamResult{Type: media.StreamHLS, Captions: captions}
	for _, p := range playlists {
		if strings.EqualFold(p.label(), "auto") || strings.EqualFold(p.label(), "default") {
			stream.Playlist = p.link()
			return stream
		}
	}
	if len(playlists) > 0 {
		stream.Playlist = playlists[0].link()
	}
	return stream
}
