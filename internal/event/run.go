package event

import "reelscout/internal/media"

// RunInput is the request for a bulk run: the media plus the already
// filtered source and embed orders and the callbacks to report through.
type RunInput struct {
	Media       media.Descriptor
	SourceOrder []string
	EmbedOrder  []string
	Events      Handler
}
