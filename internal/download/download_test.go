package download

import (
	"reflect"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{
			name: "plain",
			req:  Request{URL: "https://cdn.example/a.mp4", Title: "A"},
			want: []string{"-y", "-i", "https://cdn.example/a.mp4", "-c:v", "copy", "-c:a", "copy", "-metadata", "title=A", "/out/A.mkv"},
		},
		{
			name: "headers and subtitles",
			req: Request{
				URL:     "https://cdn.example/master.m3u8",
				Title:   "A",
				Headers: map[string]string{"Referer": "https://embed.example/", "Origin": "https://embed.example"},
				SubFile: "/tmp/en.vtt",
			},
			want: []string{
				"-y",
				"-headers", "Origin: https://embed.example\r\nReferer: https://embed.example/\r\n",
				"-i", "https://cdn.example/master.m3u8",
				"-i", "/tmp/en.vtt", "-c:s", "srt",
				"-c:v", "copy", "-c:a", "copy",
				"-map", "0:v", "-map", "0:a", "-map", "1:s",
				"-metadata", "title=A", "/out/A.mkv",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ffmpegArgs(tt.req, "/out/A.mkv"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ffmpegArgs = %q\nwant         %q", got, tt.want)
			}
		})
	}
}

func TestSizeFields(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		written int64
		want    log.Fields
	}{
		{"nothing known", Request{}, 0, log.Fields{"path": "/out/A.mkv"}},
		{"advertised only", Request{Size: 1800000000}, 0, log.Fields{"path": "/out/A.mkv", "advertised": "1.8 GB"}},
		{"both", Request{Size: 1800000000}, 1500000000, log.Fields{"path": "/out/A.mkv", "advertised": "1.8 GB", "size": "1.5 GB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sizeFields(tt.req, "/out/A.mkv", tt.written); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sizeFields = %v, want %v", got, tt.want)
			}
		})
	}
}
