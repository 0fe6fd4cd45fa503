package player

import (
	"reflect"
	"testing"

	"reelscout/internal/media"
)

type staticHeaders struct {
	active bool
	rules  map[string]string
}

func (s staticHeaders) Active() bool                        { return s.active }
func (s staticHeaders) HeadersFor(string) map[string]string { return s.rules }

func TestNewRequest(t *testing.T) {
	s := media.NewFileStream("dlhub")
	s.SetQuality(media.Quality1080, media.File{Format: "mp4", URL: "https://cdn.example/1080.mp4", Size: 1800000000})
	s.SetQuality(media.Quality720, media.File{Format: "mp4", URL: "https://cdn.example/720.mp4"})
	s.Headers = map[string]string{"Referer": "https://site.example/"}
	out := &media.RunOutput{Stream: s, SourceID: "dlhub"}

	tests := []struct {
		name    string
		quality media.Quality
		hs      HeaderSource
		wantURL string
		headers map[string]string
	}{
		{"preferred quality", media.Quality720, nil, "https://cdn.example/720.mp4", map[string]string{"Referer": "https://site.example/"}},
		{"fallback to best", media.Quality480, nil, "https://cdn.example/1080.mp4", map[string]string{"Referer": "https://site.example/"}},
		{"active bridge is the only header carrier", media.Quality1080, staticHeaders{true, map[string]string{"Origin": "https://bridge.example"}}, "https://cdn.example/1080.mp4",
			map[string]string{"Origin": "https://bridge.example"}},
		{"active bridge without a rule sends nothing", media.Quality1080, staticHeaders{active: true}, "https://cdn.example/1080.mp4", nil},
		{"inactive bridge falls back to the stream", media.Quality1080, staticHeaders{false, map[string]string{"Origin": "https://bridge.example"}}, "https://cdn.example/1080.mp4",
			map[string]string{"Referer": "https://site.example/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(out, "The Matrix", tt.quality, tt.hs)
			if err != nil {
				t.Fatal(err)
			}
			if req.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", req.URL, tt.wantURL)
			}
			if !reflect.DeepEqual(req.Headers, tt.headers) {
				t.Errorf("headers = %v, want %v", req.Headers, tt.headers)
			}
			if tt.quality == media.Quality1080 && req.Size != 1800000000 {
				t.Errorf("size = %d, want the advertised 1.8GB", req.Size)
			}
		})
	}

	if _, err := NewRequest(&media.RunOutput{Stream: media.NewFileStream("x")}, "", media.Quality1080, nil); err == nil {
		t.Error("an empty stream should not make a request")
	}
}

func TestMPVArgs(t *testing.T) {
	req := Request{
		URL:      "https://cdn.example/master.m3u8",
		Title:    "Breaking Bad S01E02",
		Headers:  map[string]string{"Referer": "https://embed.example/", "Origin": "https://embed.example", "X-Bad": "a,b"},
		SubFiles: []string{"/tmp/subs/en.vtt"},
	}
	want := []string{
		"https://cdn.example/master.m3u8",
		"--force-media-title=Breaking Bad S01E02",
		"--really-quiet",
		"--http-header-fields=Origin: https://embed.example,Referer: https://embed.example/",
		"--sub-file=/tmp/subs/en.vtt",
	}
	if got := mpvArgs(req); !reflect.DeepEqual(got, want) {
		t.Errorf("mpvArgs = %q\nwant      %q", got, want)
	}
}

func TestVLCArgs(t *testing.T) {
	req := Request{URL: "https://cdn.example/a.mp4", Title: "A", Headers: map[string]string{"Referer": "https://r.example/"}}
	want := []string{"https://cdn.example/a.mp4", "--meta-title", "A", "--play-and-exit", "--http-referrer", "https://r.example/"}
	if got := vlcArgs(req); !reflect.DeepEqual(got, want) {
		t.Errorf("vlcArgs = %q, want %q", got, want)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{"mpv": "mpv", "vlc": "vlc", "iina": "iina", "": "mpv", "unknown": "mpv"} {
		if got := New(name).Name(); got != want {
			t.Errorf("New(%q).Name() = %q, want %q", name, got, want)
		}
	}
}
