// Package source implements the catalog sources walked by the local runner.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/catalog"
	"reelscout/internal/httputil"
	"reelscout/internal/media"
)

// FlixHQ scrapes the FlixHQ catalog site. Besides serving as a catalog
// source it backs the search and trending commands.
type FlixHQ struct {
	base   string // e.g., "https://flixhq.to"
	client *http.Client
}

var _ catalog.Source = (*FlixHQ)(nil)

// NewFlixHQ creates a new FlixHQ source.
func NewFlixHQ(base string, client *http.Client) *FlixHQ {
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	return &FlixHQ{
		base:   strings.TrimRight(base, "/"),
		client: client,
	}
}

func (f *FlixHQ) Info() media.SourceDescriptor {
	return media.SourceDescriptor{
		ID:              "flixhq",
		Name:            "FlixHQ",
		Rank:            100,
		DiscoversEmbeds: true,
	}
}

// serverEmbeds maps FlixHQ server names to the embed scraper handling them.
var serverEmbeds = map[string]string{
	"vidcloud": "vidcloud",
	"upcloud":  "upcloud",
}

// Scrape finds the title, then its servers, and returns one embed per
// supported server.
func (f *FlixHQ) Scrape(ctx context.Context, sc *catalog.Context, d media.Descriptor) (*catalog.SourceOutput, error) {
	id, err := f.resolveID(ctx, d)
	if err != nil {
		return nil, err
	}
	sc.Progress(30)

	episodeID := ""
	if d.Kind == media.Show {
		episodeID, err = f.resolveEpisode(ctx, id, d)
		if err != nil {
			return nil, err
		}
	}
	sc.Progress(50)

	servers, err := f.GetServers(ctx, id, episodeID)
	if err != nil {
		return nil, err
	}
	sc.Progress(70)

	out := &catalog.SourceOutput{}
	for _, s := range servers {
		embedID, ok := serverEmbeds[strings.ToLower(s.Name)]
		if !ok {
			continue
		}
		link, err := f.GetEmbedURL(ctx, s.ID)
		if err != nil {
			log.WithError(err).WithField("server", s.Name).Debug("flixhq server has no embed")
			continue
		}
		out.Embeds = append(out.Embeds, catalog.EmbedRef{EmbedID: embedID, URL: link})
	}
	sc.Progress(90)

	if len(out.Embeds) == 0 {
		return nil, catalog.NotFound("no supported servers")
	}
	return out, nil
}

// resolveID returns the FlixHQ content id for d. Descriptors built from a
// FlixHQ search already carry it; otherwise the title is searched.
func (f *FlixHQ) resolveID(ctx context.Context, d media.Descriptor) (string, error) {
	if isFlixHQID(d.ExternalID) {
		return d.ExternalID, nil
	}
	if d.Title == "" {
		return "", catalog.NotFound("no title to search")
	}

	results, err := f.Search(ctx, d.Title)
	if err != nil {
		return "", err
	}
	if r, ok := matchResult(results, d); ok {
		return r.ID, nil
	}
	return "", catalog.NotFound(fmt.Sprintf("%q not listed", d.Title))
}

// resolveEpisode finds the FlixHQ episode id matching d's season and
// episode numbers.
func (f *FlixHQ) resolveEpisode(ctx context.Context, id string, d media.Descriptor) (string, error) {
	if d.Season == nil || d.Episode == nil {
		return "", errors.Wrap(media.ErrInvalidDescriptor, "show without season or episode")
	}
	if isFlixHQID(d.ExternalID) && httputil.ValidateNumericID(d.Episode.ID) == nil {
		return d.Episode.ID, nil
	}

	seasons, err := f.GetSeasons(ctx, id)
	if err != nil {
		return "", err
	}
	for _, s := range seasons {
		if s.Number != d.Season.Number {
			continue
		}
		episodes, err := f.GetEpisodes(ctx, s.ID)
		if err != nil {
			return "", err
		}
		for _, e := range episodes {
			if e.Number == d.Episode.Number {
				return e.ID, nil
			}
		}
	}
	return "", catalog.NotFound(fmt.Sprintf("S%02dE%02d not listed", d.Season.Number, d.Episode.Number))
}

// matchResult picks the search result matching d's kind, title and year.
func matchResult(results []media.SearchResult, d media.Descriptor) (media.SearchResult, bool) {
	want := strings.ToLower(strings.TrimSpace(d.Title))
	year := ""
	if d.ReleaseYear > 0 {
		year = strconv.Itoa(d.ReleaseYear)
	}
	for _, r := range results {
		if r.Type != d.Kind || strings.ToLower(r.Title) != want {
			continue
		}
		if year != "" && r.Year != "" && r.Year != year {
			continue
		}
		return r, true
	}
	return media.SearchResult{}, false
}

func isFlixHQID(id string) bool {
	return (strings.HasPrefix(id, "movie/") || strings.HasPrefix(id, "tv/")) && extractNumericID(id) != ""
}

// maxSearchPages limits how many pages of search results to fetch.
const maxSearchPages = 3

// Search returns matching results for a query, fetching multiple pages.
func (f *FlixHQ) Search(ctx context.Context, query string) ([]media.SearchResult, error) {
	encoded := httputil.EncodeQuery(query)
	baseSearchURL := fmt.Sprintf("%s/search/%s", f.base, encoded)

	doc, err := f.fetchDocument(ctx, baseSearchURL)
	if err != nil {
		return nil, errors.Wrapf(err, "searching for %q", query)
	}

	results := parseSearchResults(doc)
	pages := min(parseLastPage(doc), maxSearchPages)
	for page := 2; page <= pages; page++ {
		pageDoc, err := f.fetchDocument(ctx, fmt.Sprintf("%s?page=%d", baseSearchURL, page))
		if err != nil {
			break // Return what we have
		}
		results = append(results, parseSearchResults(pageDoc)...)
	}

	if len(results) == 0 {
		return nil, catalog.NotFound(fmt.Sprintf("no results found for %q", query))
	}

	f.absolutize(results)
	return results, nil
}

// GetSeasons returns available seasons for a TV show.
func (f *FlixHQ) GetSeasons(ctx context.Context, id string) ([]media.Season, error) {
	if err := httputil.ValidateID(id); err != nil {
		return nil, errors.Wrap(err, "invalid content ID")
	}

	numID := extractNumericID(id)
	if numID == "" {
		return nil, errors.Errorf("cannot extract numeric ID from %q", id)
	}

	doc, err := f.fetchDocument(ctx, fmt.Sprintf("%s/ajax/v2/tv/seasons/%s", f.base, numID))
	if err != nil {
		return nil, errors.Wrap(err, "getting seasons")
	}

	return parseSeasons(doc), nil
}

// GetEpisodes returns episodes for a given season.
func (f *FlixHQ) GetEpisodes(ctx context.Context, seasonID string) ([]media.Episode, error) {
	if err := httputil.ValidateID(seasonID); err != nil {
		return nil, errors.Wrap(err, "invalid season ID")
	}

	doc, err := f.fetchDocument(ctx, fmt.Sprintf("%s/ajax/v2/season/episodes/%s", f.base, seasonID))
	if err != nil {
		return nil, errors.Wrap(err, "getting episodes")
	}

	return parseEpisodes(doc), nil
}

// GetServers returns available streaming servers for content.
// For movies, episodeID is empty.
func (f *FlixHQ) GetServers(ctx context.Context, id string, episodeID string) ([]media.Server, error) {
	var url string

	if episodeID != "" {
		if err := httputil.ValidateID(episodeID); err != nil {
			return nil, errors.Wrap(err, "invalid episode ID")
		}
		url = fmt.Sprintf("%s/ajax/v2/episode/servers/%s", f.base, episodeID)
	} else {
		if err := httputil.ValidateID(id); err != nil {
			return nil, errors.Wrap(err, "invalid content ID")
		}
		numID := extractNumericID(id)
		if numID == "" {
			return nil, errors.Errorf("cannot extract numeric ID from %q", id)
		}
		url = fmt.Sprintf("%s/ajax/movie/episodes/%s", f.base, numID)
	}

	doc, err := f.fetchDocument(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "getting servers")
	}

	return parseServers(doc), nil
}

// GetEmbedURL returns the embed URL for a given server.
func (f *FlixHQ) GetEmbedURL(ctx context.Context, serverID string) (string, error) {
	if err := httputil.ValidateID(serverID); err != nil {
		return "", errors.Wrap(err, "invalid server ID")
	}

	// {"type":"iframe","link":"https://...","sources":[],"tracks":[],"title":""}
	body, err := httputil.GetJSON(ctx, f.client, fmt.Sprintf("%s/ajax/episode/sources/%s", f.base, serverID), nil)
	if err != nil {
		return "", errors.Wrap(err, "getting embed URL")
	}

	var result struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(err, "parsing embed response")
	}

	if result.Link == "" {
		return "", errors.Errorf("no embed URL found for server %s", serverID)
	}

	return result.Link, nil
}

// Trending returns trending content from the /home page.
func (f *FlixHQ) Trending(ctx context.Context, kind media.Kind) ([]media.SearchResult, error) {
	doc, err := f.fetchDocument(ctx, f.base+"/home")
	if err != nil {
		return nil, errors.Wrap(err, "getting trending")
	}

	results := parseTrendingResults(doc, kind)
	f.absolutize(results)
	return results, nil
}

// Recent returns recently added content from /movie or /tv-show pages.
func (f *FlixHQ) Recent(ctx context.Context, kind media.Kind) ([]media.SearchResult, error) {
	url := f.base + "/movie"
	if kind == media.Show {
		url = f.base + "/tv-show"
	}

	doc, err := f.fetchDocument(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "getting recent")
	}

	results := parseSearchResults(doc)
	f.absolutize(results)
	return results, nil
}

func (f *FlixHQ) absolutize(results []media.SearchResult) {
	for i := range results {
		if !strings.HasPrefix(results[i].URL, "http") {
			results[i].URL = f.base + results[i].URL
		}
	}
}

// fetchDocument fetches a URL and parses it into a goquery Document.
func (f *FlixHQ) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := httputil.Get(ctx, f.client, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: url}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "parsing HTML")
	}

	return doc, nil
}
