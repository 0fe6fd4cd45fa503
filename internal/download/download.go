// Package download saves a resolved stream with ffmpeg. Arguments are an
// explicit slice and the output path is checked against directory
// traversal.
package download

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/httputil"
)

// Request describes one download.
type Request struct {
	URL       string
	Title     string
	OutputDir string
	Headers   map[string]string
	SubFile   string
	Size      uint64 // Advertised source size, 0 when unknown
}

// Download runs ffmpeg for req and returns the output path.
func Download(ctx context.Context, req Request) (string, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errors.Wrap(err, "ffmpeg not found in PATH")
	}

	absDir, err := filepath.Abs(req.OutputDir)
	if err != nil {
		return "", errors.Wrap(err, "resolving output directory")
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating output directory")
	}

	outputPath, err := httputil.SafeDownloadPath(absDir, httputil.SanitizeFilename(req.Title)+".mkv")
	if err != nil {
		return "", errors.Wrap(err, "invalid output path")
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(req, outputPath)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.WithFields(sizeFields(req, outputPath, 0)).Info("downloading")
	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return "", errors.Wrap(err, "ffmpeg download failed")
	}

	if fi, err := os.Stat(outputPath); err == nil {
		log.WithFields(sizeFields(req, outputPath, fi.Size())).Info("download finished")
	}
	return outputPath, nil
}

// sizeFields describes the advertised and written sizes of a download.
func sizeFields(req Request, path string, written int64) log.Fields {
	f := log.Fields{"path": path}
	if req.Size > 0 {
		f["advertised"] = humanize.Bytes(req.Size)
	}
	if written > 0 {
		f["size"] = humanize.Bytes(uint64(written))
	}
	return f
}

func ffmpegArgs(req Request, outputPath string) []string {
	args := []string{"-y"}
	if h := headerBlock(req.Headers); h != "" {
		args = append(args, "-headers", h)
	}
	args = append(args, "-i", req.URL)

	if req.SubFile != "" {
		args = append(args, "-i", req.SubFile, "-c:s", "srt")
	}
	args = append(args, "-c:v", "copy", "-c:a", "copy")
	if req.SubFile != "" {
		args = append(args, "-map", "0:v", "-map", "0:a", "-map", "1:s")
	}

	return append(args, "-metadata", "title="+req.Title, outputPath)
}

// headerBlock renders headers in ffmpeg's CRLF-separated form, sorted.
func headerBlock(headers map[string]string) string {
	lines := make([]string, 0, len(headers))
	for k, v := range headers {
		lines = append(lines, fmt.Sprintf("%s: %s\r\n", k, v))
	}
	sort.Strings(lines)
	return strings.Join(lines, "")
}
