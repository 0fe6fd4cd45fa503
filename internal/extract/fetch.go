// Package extract holds the catalog embeds that turn embed-host URLs into
// playable streams.
package extract

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"reelscout/internal/httputil"
	"reelscout/internal/media"
)

// fetchPage fetches an HTML page with the given referer.
func fetchPage(ctx context.Context, client *http.Client, pageURL, referer string) (string, error) {
	if err := httputil.ValidateURL(pageURL); err != nil {
		return "", errors.Wrap(err, "invalid URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httputil.StatusError{Code: resp.StatusCode, URL: pageURL}
	}
	body, err := httputil.ReadBody(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// captionFormat guesses a caption format from its URL.
func captionFormat(rawURL string) string {
	p := rawURL
	if idx := strings.IndexAny(p, "?#"); idx != -1 {
		p = p[:idx]
	}
	if strings.EqualFold(path.Ext(p), ".srt") {
		return "srt"
	}
	return "vtt"
}

// isPlaylist reports whether a source is an HLS playlist.
func isPlaylist(rawURL, kind string) bool {
	return strings.EqualFold(kind, "hls") || strings.Contains(strings.ToLower(rawURL), ".m3u8")
}

// captionsFrom keeps subtitle tracks with a URL, ids derived from embedID.
func captionsFrom(embedID string, tracks []track) []media.Caption {
	captions := []media.Caption{}
	for i, t := range tracks {
		if t.File == "" || (t.Kind != "" && t.Kind != "captions" && t.Kind != "subtitles") {
			continue
		}
		captions = append(captions, media.Caption{
			ID:       embedID + "-" + strconv.Itoa(i),
			Language: t.Label,
			URL:      t.File,
			Format:   captionFormat(t.File),
		})
	}
	return captions
}

type track struct {
	File  string `json:"file"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}
