package media

// StreamType distinguishes direct files from adaptive playlists.
type StreamType string

const (
	StreamFile StreamType = "file"
	StreamHLS  StreamType = "hls"
)

// Quality is a canonical quality bucket.
type Quality string

const (
	Quality4K      Quality = "4k"
	Quality1080    Quality = "1080"
	Quality720     Quality = "720"
	Quality480     Quality = "480"
	Quality360     Quality = "360"
	QualityUnknown Quality = "unknown"
)

// Qualities lists the canonical buckets from best to worst.
var Qualities = []Quality{Quality4K, Quality1080, Quality720, Quality480, Quality360, QualityUnknown}

// File is a single playable file.
type File struct {
	Format string `json:"type"` // "mp4", "mkv"
	URL    string `json:"url"`
	Size   uint64 `json:"size,omitempty"` // Bytes as advertised, 0 when unknown
}

// Caption is a subtitle track attached to a stream.
type Caption struct {
	ID                  string `json:"id"`
	Language            string `json:"language"`
	URL                 string `json:"url"`
	Format              string `json:"type"` // "srt", "vtt"
	HasCORSRestrictions bool   `json:"hasCorsRestrictions"`
}

// StreamResult is the canonical stream representation every provider
// payload is normalized into.
type StreamResult struct {
	ID        string            `json:"id,omitempty"` // Producing adapter
	Type      StreamType        `json:"type"`
	Qualities map[Quality]File  `json:"qualities,omitempty"`
	Playlist  string            `json:"playlist,omitempty"` // HLS only
	Captions  []Caption         `json:"captions"`
	Headers   map[string]string `json:"headers,omitempty"` // Required request headers
}

// NewFileStream returns an empty file-based stream tagged with id.
func NewFileStream(id string) *StreamResult {
	return &StreamResult{
		ID:        id,
		Type:      StreamFile,
		Qualities: make(map[Quality]File),
		Captions:  []Caption{},
	}
}

// SetQuality assigns f to q only if q has no file yet. It reports whether
// the file was stored.
func (s *StreamResult) SetQuality(q Quality, f File) bool {
	if s.Qualities == nil {
		s.Qualities = make(map[Quality]File)
	}
	if _, ok := s.Qualities[q]; ok {
		return false
	}
	s.Qualities[q] = f
	return true
}

// Empty reports whether the stream has nothing playable.
func (s *StreamResult) Empty() bool {
	if s == nil {
		return true
	}
	if s.Type == StreamHLS {
		return s.Playlist == ""
	}
	for _, f := range s.Qualities {
		if f.URL != "" {
			return false
		}
	}
	return true
}

// Best returns the URL of the highest available quality, falling back to
// the playlist for HLS streams.
func (s *StreamResult) Best() (Quality, string) {
	if s == nil {
		return "", ""
	}
	if s.Type == StreamHLS {
		return QualityUnknown, s.Playlist
	}
	for _, q := range Qualities {
		if f, ok := s.Qualities[q]; ok && f.URL != "" {
			return q, f.URL
		}
	}
	return "", ""
}

// Pick returns the URL for the preferred quality, or the best available one.
func (s *StreamResult) Pick(preferred Quality) (Quality, string) {
	if s != nil && s.Type != StreamHLS {
		if f, ok := s.Qualities[preferred]; ok && f.URL != "" {
			return preferred, f.URL
		}
	}
	return s.Best()
}

// RunOutput is the single successful result of a resolution session.
type RunOutput struct {
	Stream   *StreamResult `json:"stream"`
	SourceID string        `json:"sourceId"`
	EmbedID  string        `json:"embedId,omitempty"`
}
