package port

import (
	"context"

	"github.com/soyoonlab/notare/internal/domain"
)

// PitchExtractor derives an ordered sequence of note events from a vocal-only
// stream, referenced by its key in the separated bucket.
type PitchExtractor interface {
	Extract(ctx context.Context, vocalKey string) ([]domain.Note, error)
}
