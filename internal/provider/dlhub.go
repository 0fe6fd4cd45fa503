package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/httputil"
	"reelscout/internal/media"
	"reelscout/internal/normalize"
)

// DLHub scrapes a download-link aggregator whose pages list direct file
// downloads per quality.
type DLHub struct {
	base  string
	relay *httputil.Relay
}

var _ Adapter = (*DLHub)(nil)

// NewDLHub creates the adapter. Pages are fetched through relay, which
// fetches directly when it has no workers.
func NewDLHub(base string, relay *httputil.Relay) *DLHub {
	return &DLHub{
		base:  strings.TrimRight(base, "/"),
		relay: relay,
	}
}

// DLHubPage is the raw payload extracted from an aggregator page.
type DLHubPage struct {
	Title     string
	Episode   string
	MP4       []normalize.Link
	MKV       []normalize.Link
	Subtitles []DLHubSubtitle
}

// DLHubSubtitle is a subtitle download button.
type DLHubSubtitle struct {
	Language string
	URL      string
}

// Success reports whether at least one MP4 or MKV link was found.
func (p *DLHubPage) Success() bool {
	return p != nil && len(p.MP4)+len(p.MKV) > 0
}

func (h *DLHub) Source() media.SourceDescriptor {
	return media.SourceDescriptor{
		ID:     "dlhub",
		Name:   "DLHub",
		Rank:   200,
		Custom: true,
	}
}

func (h *DLHub) ScrapeMovie(ctx context.Context, d media.Descriptor) (Payload, error) {
	return h.scrape(ctx, h.moviePath(d))
}

func (h *DLHub) ScrapeShow(ctx context.Context, d media.Descriptor) (Payload, error) {
	if d.Season == nil || d.Episode == nil {
		return nil, errors.Wrap(media.ErrInvalidDescriptor, "dlhub needs season and episode")
	}
	return h.scrape(ctx, h.showPath(d))
}

// Normalize drops captions: subtitles come from a separate caption source.
func (h *DLHub) Normalize(p Payload) (*media.StreamResult, bool) {
	page, ok := p.(*DLHubPage)
	if !ok || !page.Success() {
		return nil, false
	}
	return normalize.ToStream(h.Source().ID, page.MP4, page.MKV)
}

// moviePath builds the canonical page path, e.g. "/movies/the-matrix-1999".
func (h *DLHub) moviePath(d media.Descriptor) string {
	return "/movies/" + slugWithYear(d)
}

// showPath builds e.g. "/tv/breaking-bad-2008/season-1/episode-2".
func (h *DLHub) showPath(d media.Descriptor) string {
	return fmt.Sprintf("/tv/%s/season-%d/episode-%d", slugWithYear(d), d.Season.Number, d.Episode.Number)
}

func slugWithYear(d media.Descriptor) string {
	slug := httputil.Slugify(d.Title)
	if slug == "" {
		slug = httputil.Slugify(d.ExternalID)
	}
	if d.ReleaseYear > 0 {
		slug = fmt.Sprintf("%s-%d", slug, d.ReleaseYear)
	}
	return slug
}

func (h *DLHub) scrape(ctx context.Context, path string) (Payload, error) {
	pageURL := h.base + path
	resp, err := h.relay.Get(ctx, pageURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetching page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: pageURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		log.WithError(err).WithField("url", pageURL).Debug("dlhub page did not parse")
		return &DLHubPage{}, nil
	}
	return parseDLHubPage(doc), nil
}

// parseDLHubPage extracts the title, episode label, download buttons and
// subtitle buttons of a page.
func parseDLHubPage(doc *goquery.Document) *DLHubPage {
	page := &DLHubPage{
		Title:   strings.TrimSpace(doc.Find("h1").First().Text()),
		Episode: strings.TrimSpace(doc.Find(".episode-title").First().Text()),
	}

	doc.Find("a.dl-btn").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		label := strings.TrimSpace(s.Find(".dl-label").Text())
		if label == "" {
			label = strings.TrimSpace(s.Text())
		}
		info := strings.TrimSpace(s.Find(".dl-info").Text())

		size := normalize.ExtractSize(info)
		link := normalize.Link{
			Label:     normalize.ClassifyQuality(label),
			Format:    normalize.ClassifyFormat(label, href),
			URL:       href,
			Size:      size,
			SizeBytes: normalize.ParseSize(size),
		}
		if link.Format == normalize.FormatMKV {
			page.MKV = append(page.MKV, link)
		} else {
			page.MP4 = append(page.MP4, link)
		}
	})

	doc.Find("a.sub-btn").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		lang := s.AttrOr("data-lang", "")
		if lang == "" {
			lang = strings.TrimSpace(s.Text())
		}
		page.Subtitles = append(page.Subtitles, DLHubSubtitle{Language: lang, URL: href})
	})

	return page
}
