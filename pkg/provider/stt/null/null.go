// Package null provides a deterministic STT provider for development setups
// without a speech backend. The transcript depends only on the payload size.
// It is selected with providers.stt.name: null and is never an implicit
// fallback.
package null

import (
	"context"

	"github.com/MrWong99/jargonaut/pkg/provider/stt"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var _ stt.Provider = (*Provider)(nil)

const (
	// Confidence is reported on every transcript.
	Confidence = 0.95

	shortText  = "Hello, how can I help you today?"
	mediumText = "I need help understanding this technical terminology."
	longText   = "Could you please explain this complex technical concept in simpler terms?"
)

// Provider returns canned transcripts.
type Provider struct{}

// New returns a null Provider.
func New() *Provider { return &Provider{} }

// Transcribe implements stt.Provider.
func (*Provider) Transcribe(ctx context.Context, data []byte, opts stt.Options) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}
	var text string
	switch n := len(data); {
	case n < 1000:
		text = shortText
	case n < 5000:
		text = mediumText
	default:
		text = longText
	}
	return types.Transcript{
		Text:       text,
		Confidence: Confidence,
		Language:   opts.LanguageCode,
		IsFinal:    true,
	}, nil
}
