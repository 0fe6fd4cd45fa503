package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/webtor-io/lazymap"

	"reelscout/internal/event"
	"reelscout/internal/httputil"
	"reelscout/internal/media"
)

var (
	// ErrNoTerminal is returned when the stream ends without a completed or
	// noOutput event.
	ErrNoTerminal = errors.New("event stream ended without a result")

	// ErrRemote is returned when the resolver reports an error event.
	ErrRemote = errors.New("resolver reported an error")
)

const (
	maxEventSize     = 4 * 1024 * 1024
	metadataAttempts = 3
	metadataKey      = "metadata"
)

// Client is the remote channel to a resolver.
type Client struct {
	base   string
	client *http.Client
	meta   *lazymap.LazyMap[*Metadata]

	// retryDelay is multiplied by the attempt number between metadata retries.
	retryDelay time.Duration
}

// NewClient creates a client for the resolver at base.
func NewClient(base string, client *http.Client) (*Client, error) {
	base = strings.TrimRight(base, "/")
	if err := httputil.ValidateEndpoint(base); err != nil {
		return nil, errors.Wrap(err, "invalid resolver url")
	}
	return &Client{
		base:   base,
		client: client,
		meta: lazymap.New[*Metadata](&lazymap.Config{
			Expire:      10 * time.Minute,
			ErrorExpire: 10 * time.Second,
		}),
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// Stream runs the bulk phase on the resolver. Progress events are handed to
// in.Events in arrival order. It returns the completed output, or nil on
// noOutput. A failed connection, a non-2xx status, an error event and a
// stream that ends early are all errors.
func (c *Client) Stream(ctx context.Context, in event.RunInput) (*media.RunOutput, error) {
	streamURL := c.base + "/scrape?" + Query(in).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to resolver")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: c.base + "/scrape"}
	}

	return decodeStream(bufio.NewScanner(resp.Body), in.Events)
}

// frame is one server-sent event.
type frame struct {
	name string
	data []string
}

func decodeStream(sc *bufio.Scanner, h event.Handler) (*media.RunOutput, error) {
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	var f frame
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if f.name == "" && len(f.data) == 0 {
				continue
			}
			out, done, err := dispatch(f, h)
			if done || err != nil {
				return out, err
			}
			f = frame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.name = value
		case "data":
			f.data = append(f.data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading event stream")
	}
	return nil, ErrNoTerminal
}

// dispatch handles one frame. done is set for terminal events.
func dispatch(f frame, h event.Handler) (out *media.RunOutput, done bool, err error) {
	data := []byte(strings.Join(f.data, "\n"))
	switch f.name {
	case event.NameInit:
		var e event.Init
		if decode(f.name, data, &e) {
			h.Init(e)
		}
	case event.NameStart:
		var e event.Start
		if decode(f.name, data, &e) {
			h.Start(e.ID)
		}
	case event.NameUpdate:
		var e event.Update
		if decode(f.name, data, &e) {
			h.Update(e)
		}
	case event.NameDiscoverEmbeds:
		var e event.DiscoverEmbeds
		if decode(f.name, data, &e) {
			h.DiscoverEmbeds(e)
		}
	case event.NameCompleted:
		var o media.RunOutput
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, true, errors.Wrap(err, "decoding completed event")
		}
		return &o, true, nil
	case event.NameNoOutput:
		return nil, true, nil
	case event.NameError:
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &e) != nil || e.Message == "" {
			e.Message = string(data)
		}
		return nil, true, errors.Wrap(ErrRemote, e.Message)
	default:
		log.WithField("event", f.name).Debug("ignoring unknown event")
	}
	return nil, false, nil
}

func decode(name string, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.WithError(err).WithField("event", name).Warn("dropping malformed event")
		return false
	}
	return true
}

// Metadata returns the resolver's sources and embeds, cached. Server errors
// are retried up to three attempts in total.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	return c.meta.Get(metadataKey, func() (*Metadata, error) {
		return c.fetchMetadata(ctx)
	})
}

func (c *Client) fetchMetadata(ctx context.Context) (*Metadata, error) {
	var lastErr error
	for attempt := 1; attempt <= metadataAttempts; attempt++ {
		m, err := c.fetchMetadataOnce(ctx)
		if err == nil {
			return m, nil
		}
		lastErr = err
		var se *httputil.StatusError
		if !errors.As(err, &se) || se.Code < 500 {
			return nil, err
		}
		log.WithError(err).WithField("attempt", attempt).Debug("retrying metadata fetch")
		if attempt == metadataAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return nil, errors.Wrapf(lastErr, "metadata failed after %d attempts", metadataAttempts)
}

func (c *Client) fetchMetadataOnce(ctx context.Context) (*Metadata, error) {
	metaURL := c.base + "/metadata"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching metadata")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{Code: resp.StatusCode, URL: metaURL}
	}

	var m Metadata
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decoding metadata")
	}
	return &m, nil
}

// Load fetches the metadata if it is not cached yet.
func (c *Client) Load(ctx context.Context) error {
	_, err := c.Metadata(ctx)
	return err
}

// Sources lists the resolver's sources, or nothing when the metadata is
// unavailable.
func (c *Client) Sources() []media.SourceDescriptor {
	if m := c.cached(); m != nil {
		return m.Sources
	}
	return nil
}

// Embeds lists the resolver's embeds, or nothing when the metadata is
// unavailable.
func (c *Client) Embeds() []media.SourceDescriptor {
	if m := c.cached(); m != nil {
		return m.Embeds
	}
	return nil
}

// Lookup finds a source or embed by id.
func (c *Client) Lookup(id string) (media.SourceDescriptor, bool) {
	m := c.cached()
	if m == nil {
		return media.SourceDescriptor{}, false
	}
	for _, list := range [][]media.SourceDescriptor{m.Sources, m.Embeds} {
		for _, d := range list {
			if d.ID == id {
				return d, true
			}
		}
	}
	return media.SourceDescriptor{}, false
}

func (c *Client) cached() *Metadata {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m, err := c.Metadata(ctx)
	if err != nil {
		log.WithError(err).Warn("resolver metadata unavailable")
		return nil
	}
	return m
}
