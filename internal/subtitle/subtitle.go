// Package subtitle picks a caption track and fetches it into a private
// temporary directory.
package subtitle

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"reelscout/internal/httputil"
	"reelscout/internal/media"
)

// maxSize bounds a caption download.
const maxSize = 10 * 1024 * 1024

// Filter returns captions whose language matches (case-insensitive
// substring). An empty language keeps everything.
func Filter(captions []media.Caption, language string) []media.Caption {
	if language == "" {
		return captions
	}
	lang := strings.ToLower(language)
	return lo.Filter(captions, func(c media.Caption, _ int) bool {
		return strings.Contains(strings.ToLower(c.Language), lang)
	})
}

// BestMatch returns the best caption for language: an exact language match,
// then a non-SDH partial match, then the first partial match.
func BestMatch(captions []media.Caption, language string) *media.Caption {
	filtered := Filter(captions, language)
	if len(filtered) == 0 {
		return nil
	}
	lang := strings.ToLower(language)

	if c, ok := lo.Find(filtered, func(c media.Caption) bool { return strings.EqualFold(c.Language, lang) }); ok {
		return &c
	}
	if c, ok := lo.Find(filtered, func(c media.Caption) bool {
		return !strings.Contains(strings.ToLower(c.Language), "sdh")
	}); ok {
		return &c
	}
	return &filtered[0]
}

// TempDir is a randomized temporary directory for caption files.
type TempDir struct {
	path   string
	client *http.Client
}

// NewTempDir creates the directory.
func NewTempDir(client *http.Client) (*TempDir, error) {
	dir, err := os.MkdirTemp("", "reelscout-subs-*")
	if err != nil {
		return nil, errors.Wrap(err, "creating subtitle temp dir")
	}
	return &TempDir{path: dir, client: client}, nil
}

// Cleanup removes the directory and its contents.
func (t *TempDir) Cleanup() {
	if t.path != "" {
		os.RemoveAll(t.path)
	}
}

// Download fetches c into the directory and returns the local path. headers
// are sent with the request, for hosts that need a referer.
func (t *TempDir) Download(ctx context.Context, c media.Caption, headers map[string]string) (string, error) {
	if err := httputil.ValidateURL(c.URL); err != nil {
		return "", errors.Wrap(err, "invalid subtitle URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}
	req.Header.Set("User-Agent", httputil.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "downloading subtitle")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &httputil.StatusError{Code: resp.StatusCode, URL: c.URL}
	}

	localPath := filepath.Join(t.path, fileName(c))
	f, err := os.Create(localPath)
	if err != nil {
		return "", errors.Wrap(err, "creating subtitle file")
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxSize)); err != nil {
		return "", errors.Wrap(err, "writing subtitle file")
	}
	return localPath, nil
}

// fileName derives a safe local name from the caption id and format.
func fileName(c media.Caption) string {
	ext := c.Format
	if ext == "" {
		ext = "vtt"
	}
	return httputil.SanitizeFilename(c.ID) + "." + ext
}
