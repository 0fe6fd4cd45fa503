package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/lazymap"

	"reelscout/internal/catalog"
	"reelscout/internal/httputil"
	"reelscout/internal/media"
)

// DefaultKeysURL publishes the host's current decryption key.
const DefaultKeysURL = "https://raw.githubusercontent.com/yogesh-hacker/MegacloudKeys/refs/heads/main/keys.json"

var embedPrefixPattern = regexp.MustCompile(`^embed-\d+$`)

// MegaCloud resolves MegaCloud/VidCloud embed URLs into HLS playlists.
type MegaCloud struct {
	client  *http.Client
	referer string
	keysURL string
	keys    *lazymap.LazyMap[map[string]string]
}

var _ catalog.Embed = (*MegaCloud)(nil)

// NewMegaCloud creates the embed. referer is the catalog site the embed is
// framed by; an empty keysURL selects DefaultKeysURL.
func NewMegaCloud(client *http.Client, referer, keysURL string) *MegaCloud {
	if keysURL == "" {
		keysURL = DefaultKeysURL
	}
	return &MegaCloud{
		client:  client,
		referer: referer,
		keysURL: keysURL,
		keys: lazymap.New[map[string]string](&lazymap.Config{
			Expire:      time.Hour,
			ErrorExpire: 30 * time.Second,
		}),
	}
}

func (m *MegaCloud) Info() media.SourceDescriptor {
	return media.SourceDescriptor{
		ID:   "vidcloud",
		Name: "VidCloud",
		Rank: 500,
	}
}

type sourcesResponse struct {
	Sources   json.RawMessage `json:"sources"`
	Tracks    []track         `json:"tracks"`
	Encrypted bool            `json:"encrypted"`
}

type megaSource struct {
	File string `json:"file"`
	Type string `json:"type"`
}

// Scrape reads the client key off the embed page, fetches the source list
// and decrypts it when needed.
func (m *MegaCloud) Scrape(ctx context.Context, sc *catalog.Context, embedURL string) (*media.StreamResult, error) {
	if err := httputil.ValidateURL(embedURL); err != nil {
		return nil, errors.Wrap(err, "invalid embed URL")
	}
	domain, prefix, sourceID, err := parseEmbedURL(embedURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing embed URL")
	}

	pageURL := fmt.Sprintf("https://%s/%s/v3/e-1/%s?z=", domain, prefix, sourceID)
	page, err := fetchPage(ctx, m.client, pageURL, m.referer)
	if err != nil {
		return nil, errors.Wrap(err, "fetching embed page")
	}
	clientKey, err := extractClientKey(page)
	if err != nil {
		return nil, err
	}
	sc.Progress(30)

	sourcesURL := fmt.Sprintf("https://%s/%s/v3/e-1/getSources?id=%s&_k=%s",
		domain, prefix, url.QueryEscape(sourceID), url.QueryEscape(clientKey))
	body, err := httputil.GetJSON(ctx, m.client, sourcesURL, map[string]string{
		"Referer":          embedURL,
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetching sources")
	}
	sc.Progress(60)

	var resp sourcesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "parsing sources response")
	}
	sources, err := m.decodeSources(ctx, resp, clientKey)
	if err != nil {
		return nil, err
	}
	sc.Progress(90)

	playlist := ""
	for _, s := range sources {
		if s.File != "" && isPlaylist(s.File, s.Type) {
			playlist = s.File
			break
		}
	}
	if playlist == "" && len(sources) > 0 {
		playlist = sources[0].File
	}
	if playlist == "" {
		return nil, catalog.NotFound("embed has no sources")
	}

	origin := "https://" + domain
	return &media.StreamResult{
		Type:     media.StreamHLS,
		Playlist: playlist,
		Captions: captionsFrom("vidcloud", resp.Tracks),
		Headers: map[string]string{
			"Referer": origin + "/",
			"Origin":  origin,
		},
	}, nil
}

func (m *MegaCloud) decodeSources(ctx context.Context, resp sourcesResponse, clientKey string) ([]megaSource, error) {
	var sources []megaSource
	if !resp.Encrypted {
		if err := json.Unmarshal(resp.Sources, &sources); err != nil {
			return nil, errors.Wrap(err, "parsing plaintext sources")
		}
		return sources, nil
	}

	var encrypted string
	if err := json.Unmarshal(resp.Sources, &encrypted); err != nil {
		return nil, errors.Wrap(err, "parsing encrypted sources")
	}
	megaKey, err := m.megaKey(ctx)
	if err != nil {
		return nil, err
	}
	plain := decryptSources(encrypted, clientKey, megaKey)
	if plain == "" {
		return nil, errors.New("decryption returned empty result")
	}
	if err := json.Unmarshal([]byte(plain), &sources); err != nil {
		return nil, errors.Wrap(err, "parsing decrypted sources")
	}
	log.WithField("sources", len(sources)).Debug("decrypted embed sources")
	return sources, nil
}

// megaKey returns the published key, cached for an hour.
func (m *MegaCloud) megaKey(ctx context.Context) (string, error) {
	keys, err := m.keys.Get(m.keysURL, func() (map[string]string, error) {
		body, err := httputil.GetJSON(ctx, m.client, m.keysURL, nil)
		if err != nil {
			return nil, errors.Wrap(err, "fetching megacloud keys")
		}
		var keys map[string]string
		if err := json.Unmarshal(body, &keys); err != nil {
			return nil, errors.Wrap(err, "parsing megacloud keys")
		}
		return keys, nil
	})
	if err != nil {
		return "", err
	}
	key, ok := keys["mega"]
	if !ok {
		return "", errors.New("mega key not found in keys response")
	}
	return key, nil
}

// parseEmbedURL splits an embed URL into host, embed prefix and source id.
// e.g. https://streameeeeee.site/embed-1/v3/e-1/AbCdEf?z= -> ("streameeeeee.site", "embed-1", "AbCdEf")
func parseEmbedURL(embedURL string) (domain, prefix, sourceID string, err error) {
	u, err := url.Parse(embedURL)
	if err != nil {
		return "", "", "", errors.Wrap(err, "parsing URL")
	}
	if u.Host == "" {
		return "", "", "", errors.Errorf("no host in %q", embedURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	prefix = parts[0]
	if !embedPrefixPattern.MatchString(prefix) {
		prefix = "embed-2"
	}

	sourceID = parts[len(parts)-1]
	if sourceID == "" || (len(parts) == 1 && sourceID == prefix) {
		return "", "", "", errors.Errorf("could not extract source ID from %q", embedURL)
	}
	return u.Host, prefix, sourceID, nil
}
