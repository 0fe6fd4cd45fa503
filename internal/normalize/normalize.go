// Package normalize converts provider-specific link lists into the canonical
// media.StreamResult shape with deterministic tie-break rules.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"reelscout/internal/media"
)

// Provider-facing quality labels.
const (
	Label4K       = "4K"
	Label2160     = "2160p"
	Label1080     = "1080p"
	Label720      = "720p"
	Label480      = "480p"
	Label360      = "360p"
	LabelOriginal = "Original"
	LabelUnknown  = "unknown"
)

// Container formats.
const (
	FormatMP4 = "MP4"
	FormatMKV = "MKV"
)

// rank orders labels from best to worst. Unlisted labels rank 0.
var rank = map[string]int{
	Label4K:       5,
	Label2160:     5,
	Label1080:     4,
	LabelOriginal: 3,
	Label720:      2,
	Label480:      1,
	Label360:      0,
	LabelUnknown:  0,
}

// canonical maps labels to quality buckets. "unknown" is deliberately absent:
// it is only used as the fallback bucket.
var canonical = map[string]media.Quality{
	Label4K:       media.Quality4K,
	Label2160:     media.Quality4K,
	Label1080:     media.Quality1080,
	LabelOriginal: media.Quality1080,
	Label720:      media.Quality720,
	Label480:      media.Quality480,
	Label360:      media.Quality360,
}

var (
	originalPattern = regexp.MustCompile(`(?i)\b(org|original)\b`)
	sizePattern     = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:[GMKT]i?B?|B)\b`)
)

// Link is a single downloadable file found by a provider.
type Link struct {
	Label     string // Quality label, e.g. "1080p"
	Format    string // FormatMP4 or FormatMKV
	URL       string
	Size      string // Human size as advertised, e.g. "1.4GB"
	SizeBytes uint64 // Parsed Size, 0 when unknown
}

// Rank returns the position of a quality label in the ranking table.
func Rank(label string) int {
	return rank[label]
}

// ClassifyFormat returns FormatMKV when label or url mention "mkv", else FormatMP4.
func ClassifyFormat(label, url string) string {
	if strings.Contains(strings.ToLower(label), "mkv") || strings.Contains(strings.ToLower(url), "mkv") {
		return FormatMKV
	}
	return FormatMP4
}

// ClassifyQuality maps free text to a quality label by keyword.
func ClassifyQuality(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "4k") || strings.Contains(lower, "2160"):
		return Label4K
	case strings.Contains(lower, "1080"):
		return Label1080
	case strings.Contains(lower, "720"):
		return Label720
	case strings.Contains(lower, "480"):
		return Label480
	case strings.Contains(lower, "360"):
		return Label360
	case originalPattern.MatchString(lower):
		return LabelOriginal
	default:
		return LabelUnknown
	}
}

// ExtractSize returns the first "<number><unit>" token of info, else the text
// before a bullet separator, else info itself.
func ExtractSize(info string) string {
	info = strings.TrimSpace(info)
	if m := sizePattern.FindString(info); m != "" {
		return strings.ReplaceAll(m, " ", "")
	}
	if idx := strings.Index(info, "•"); idx != -1 {
		return strings.TrimSpace(info[:idx])
	}
	return info
}

// ParseSize converts an advertised size into bytes. Unparseable sizes yield 0.
func ParseSize(size string) uint64 {
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return 0
	}
	return n
}

// QualityFromLabel maps a free-form label such as "720p" or "auto" to a
// canonical bucket, QualityUnknown when nothing matches.
func QualityFromLabel(label string) media.Quality {
	if q, ok := canonical[ClassifyQuality(label)]; ok {
		return q
	}
	return media.QualityUnknown
}

// Sort orders links best first. MP4 links are preferred over MKV on equal rank,
// otherwise input order is kept.
func Sort(links []Link) []Link {
	sorted := make([]Link, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := Rank(sorted[i].Label), Rank(sorted[j].Label)
		if ri != rj {
			return ri > rj
		}
		return sorted[i].Format == FormatMP4 && sorted[j].Format != FormatMP4
	})
	return sorted
}

// ToStream builds a file stream from MP4 and MKV link lists. Only the first,
// highest ranked link of each quality bucket is kept. When no link maps to a
// bucket the single best link is stored as unknown. It reports false when no
// link was given.
func ToStream(id string, mp4, mkv []Link) (*media.StreamResult, bool) {
	all := make([]Link, 0, len(mp4)+len(mkv))
	all = append(all, mp4...)
	all = append(all, mkv...)
	if len(all) == 0 {
		return nil, false
	}

	sorted := Sort(all)
	stream := media.NewFileStream(id)
	populated := false
	for _, l := range sorted {
		q, ok := canonical[l.Label]
		if !ok || l.URL == "" {
			continue
		}
		if stream.SetQuality(q, toFile(l)) {
			populated = true
		}
	}

	if !populated {
		stream.SetQuality(media.QualityUnknown, toFile(sorted[0]))
	}
	return stream, true
}

func toFile(l Link) media.File {
	return media.File{Format: strings.ToLower(l.Format), URL: l.URL, Size: l.SizeBytes}
}
