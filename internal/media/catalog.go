package media

import (
	"fmt"
	"strings"
)

// SearchResult is a title found while browsing a catalog site.
type SearchResult struct {
	ID    string // Site-specific ID (e.g., "movie/free-the-exorcist-hd-75043")
	Title string
	Type  Kind
	Year  string
	URL   string // Full URL to the content page
}

// DisplayTitle creates a display string for fzf selection.
func (r SearchResult) DisplayTitle() string {
	parts := []string{r.Title}
	if r.Year != "" {
		parts = append(parts, fmt.Sprintf("(%s)", r.Year))
	}
	if r.Type == Show {
		parts = append(parts, "[TV]")
	} else {
		parts = append(parts, "[Movie]")
	}
	return strings.Join(parts, " ")
}

// Season represents a show season on a catalog site.
type Season struct {
	Number int
	ID     string
}

// Episode represents a show episode on a catalog site.
type Episode struct {
	Number int
	Title  string
	ID     string
}

// Server represents a streaming server listed for a title.
type Server struct {
	Name string // e.g., "Vidcloud", "UpCloud"
	ID   string
}
