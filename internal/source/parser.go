package source

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"reelscout/internal/media"
)

// parseSearchResults extracts search results from a goquery document.
// Uses DOM parsing instead of sed/grep on raw HTML to prevent injection.
func parseSearchResults(doc *goquery.Document) []media.SearchResult {
	return parseItems(doc.Find(".film_list-wrap .flw-item"))
}

// parseItems converts .flw-item cards into search results.
func parseItems(items *goquery.Selection) []media.SearchResult {
	var results []media.SearchResult

	items.Each(func(_ int, s *goquery.Selection) {
		result := media.SearchResult{}

		link := s.Find(".film-name a")
		result.Title = strings.TrimSpace(link.Text())
		href, exists := link.Attr("href")
		if exists {
			result.URL = href
			result.ID = extractID(href)
		}

		if strings.Contains(href, "/tv/") {
			result.Type = media.Show
		} else {
			result.Type = media.Movie
		}

		s.Find(".fd-infor span").Each(func(_ int, span *goquery.Selection) {
			text := strings.TrimSpace(span.Text())
			if _, err := strconv.Atoi(text); err == nil && len(text) == 4 {
				result.Year = text
			}
		})

		if result.Title != "" {
			results = append(results, result)
		}
	})

	return results
}

// parseLastPage returns the last page number of a paginated search, 1 when
// there is no pagination.
func parseLastPage(doc *goquery.Document) int {
	last := 1
	doc.Find(".pagination .page-item a").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		idx := strings.Index(href, "page=")
		if idx == -1 {
			return
		}
		if n, err := strconv.Atoi(href[idx+len("page="):]); err == nil && n > last {
			last = n
		}
	})
	return last
}

// parseSeasons extracts season information from a show page.
func parseSeasons(doc *goquery.Document) []media.Season {
	var seasons []media.Season

	doc.Find(".dropdown-menu-model .dropdown-item").Each(func(_ int, s *goquery.Selection) {
		dataID, _ := s.Attr("data-id")
		title := strings.TrimSpace(s.Text())

		num := 0
		if parts := strings.Fields(title); len(parts) >= 2 {
			num, _ = strconv.Atoi(parts[len(parts)-1])
		}

		if dataID == "" {
			href, exists := s.Attr("href")
			if !exists {
				return
			}
			parts := strings.Split(href, "/")
			dataID = parts[len(parts)-1]
		}

		seasons = append(seasons, media.Season{
			Number: num,
			ID:     dataID,
		})
	})

	return seasons
}

// parseEpisodes extracts episode information from a season page.
func parseEpisodes(doc *goquery.Document) []media.Episode {
	var episodes []media.Episode

	doc.Find(".nav-item a").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-id")
		if !exists {
			return
		}

		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}

		// "Eps 3: Name" carries the number before the colon.
		num := 0
		label := title
		if idx := strings.Index(label, ":"); idx != -1 {
			label = label[:idx]
		}
		if parts := strings.Fields(label); len(parts) >= 2 {
			if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				num = n
			}
		}

		episodes = append(episodes, media.Episode{
			Number: num,
			Title:  title,
			ID:     dataID,
		})
	})

	return episodes
}

// parseServers extracts server options from a content page.
// Movie endpoints use data-linkid, TV episode endpoints use data-id.
func parseServers(doc *goquery.Document) []media.Server {
	var servers []media.Server
	seen := make(map[string]bool)

	doc.Find(".link-item, .server-item a, [data-id]").Each(func(_ int, s *goquery.Selection) {
		dataID, exists := s.Attr("data-linkid")
		if !exists {
			dataID, exists = s.Attr("data-id")
		}
		if !exists || seen[dataID] {
			return
		}
		seen[dataID] = true

		name := strings.TrimSpace(s.Text())
		if name == "" {
			name = s.AttrOr("title", "Unknown")
		}
		name = strings.TrimPrefix(name, "Server ")

		servers = append(servers, media.Server{
			Name: name,
			ID:   dataID,
		})
	})

	return servers
}

// extractID extracts the content ID from a URL path.
// e.g., "/movie/free-the-exorcist-hd-75043" -> "movie/free-the-exorcist-hd-75043"
func extractID(urlPath string) string {
	id := strings.TrimPrefix(urlPath, "/")
	if idx := strings.Index(id, "?"); idx != -1 {
		id = id[:idx]
	}
	return id
}

// extractNumericID extracts the trailing numeric ID from a path.
// e.g., "movie/free-the-exorcist-hd-75043" -> "75043"
func extractNumericID(id string) string {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	if _, err := strconv.Atoi(last); err == nil {
		return last
	}
	return ""
}

// parseTrendingResults extracts results from the /home page's trending tab
// panels, #trending-movies or #trending-tv depending on kind.
func parseTrendingResults(doc *goquery.Document, kind media.Kind) []media.SearchResult {
	selector := "#trending-movies"
	if kind == media.Show {
		selector = "#trending-tv"
	}
	return parseItems(doc.Find(selector).Find(".film_list-wrap .flw-item"))
}
