// Package player launches external media players for a resolved stream.
// Every invocation uses exec.Command with an explicit argument slice, so
// remote data never reaches a shell.
package player

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/media"
)

// ErrPlaybackFailed is returned when the player could not open the stream.
var ErrPlaybackFailed = errors.New("player could not play the stream")

// Request is everything a player needs for one stream.
type Request struct {
	URL      string
	Title    string
	Headers  map[string]string
	SubFiles []string
	Size     uint64 // Advertised size of the picked file, 0 when unknown
}

// HeaderSource holds the request headers registered for stream hosts.
type HeaderSource interface {
	Active() bool
	HeadersFor(url string) map[string]string
}

// NewRequest picks the preferred quality of out. While hs is active the
// headers come only from the rules it registered for the picked URL;
// otherwise the stream's own headers are used. hs may be nil.
func NewRequest(out *media.RunOutput, title string, quality media.Quality, hs HeaderSource) (Request, error) {
	if out == nil || out.Stream.Empty() {
		return Request{}, errors.New("nothing to play")
	}
	q, url := out.Stream.Pick(quality)
	log.WithFields(log.Fields{"quality": q, "source": out.SourceID}).Debug("picked stream")

	var headers map[string]string
	if hs != nil && hs.Active() {
		headers = hs.HeadersFor(url)
	} else {
		headers = make(map[string]string, len(out.Stream.Headers))
		for k, v := range out.Stream.Headers {
			headers[k] = v
		}
	}
	return Request{URL: url, Title: title, Headers: headers, Size: out.Stream.Qualities[q].Size}, nil
}

// Player is a media player implementation.
type Player interface {
	// Play blocks until the player exits.
	Play(ctx context.Context, req Request) error

	// Name returns the player name.
	Name() string

	// Available checks if the player binary exists in PATH.
	Available() bool
}

// New creates a player by name.
func New(name string) Player {
	switch name {
	case "vlc":
		return &binary{name: "vlc", args: vlcArgs}
	case "iina", "celluloid":
		return &binary{name: name, args: mpvArgs}
	default:
		return &binary{name: "mpv", args: mpvArgs, failCodes: []int{2}}
	}
}

// binary runs a player executable with arguments built from a request.
type binary struct {
	name string
	args func(Request) []string

	// failCodes are exit codes meaning the stream never played. Other
	// non-zero codes are user quits.
	failCodes []int
}

func (b *binary) Name() string { return b.name }

func (b *binary) Available() bool {
	_, err := exec.LookPath(b.name)
	return err == nil
}

func (b *binary) Play(ctx context.Context, req Request) error {
	cmd := exec.CommandContext(ctx, b.name, b.args(req)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		for _, code := range b.failCodes {
			if exitErr.ExitCode() == code {
				return ErrPlaybackFailed
			}
		}
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "running %s", b.name)
	}
	return nil
}

// mpvArgs also serves iina and celluloid, which accept mpv flags.
func mpvArgs(req Request) []string {
	args := []string{
		req.URL,
		"--force-media-title=" + req.Title,
		"--really-quiet",
	}
	if fields := headerFields(req.Headers); len(fields) > 0 {
		args = append(args, "--http-header-fields="+strings.Join(fields, ","))
	}
	for _, sub := range req.SubFiles {
		args = append(args, "--sub-file="+sub)
	}
	return args
}

func vlcArgs(req Request) []string {
	args := []string{
		req.URL,
		"--meta-title", req.Title,
		"--play-and-exit",
	}
	for k, v := range req.Headers {
		switch strings.ToLower(k) {
		case "referer":
			args = append(args, "--http-referrer", v)
		case "user-agent":
			args = append(args, "--http-user-agent", v)
		}
	}
	if len(req.SubFiles) > 0 {
		args = append(args, "--sub-file", req.SubFiles[0])
	}
	return args
}

// headerFields renders headers as sorted "Key: value" pairs. Values with a
// comma would split the mpv list and are dropped.
func headerFields(headers map[string]string) []string {
	out := make([]string, 0, len(headers))
	for k, v := range headers {
		if strings.Contains(v, ",") {
			log.WithField("header", k).Debug("skipping header with a comma")
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", k, v))
	}
	sort.Strings(out)
	return out
}
