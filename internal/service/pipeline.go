package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/soyoonlab/notare/internal/domain"
	"github.com/soyoonlab/notare/internal/port"
)

// TranscriptionPipeline composes the two external calls of a job — source
// separation, then pitch extraction on the vocal stem — and assembles the
// final result. It holds no state and no locks; the queue worker is its only
// caller.
type TranscriptionPipeline struct {
	separator      port.Separator
	pitch          port.PitchExtractor
	blobs          port.BlobStore
	originalBucket string
	presignTTL     time.Duration
}

func NewTranscriptionPipeline(
	separator port.Separator,
	pitch port.PitchExtractor,
	blobs port.BlobStore,
	originalBucket string,
	presignTTL time.Duration,
) *TranscriptionPipeline {
	return &TranscriptionPipeline{
		separator:      separator,
		pitch:          pitch,
		blobs:          blobs,
		originalBucket: originalBucket,
		presignTTL:     presignTTL,
	}
}

func (p *TranscriptionPipeline) Process(ctx context.Context, input domain.Submission) (*domain.Result, error) {
	stems, err := p.separator.Separate(ctx, input.StorageKey, input.Namespace)
	if err != nil {
		return nil, fmt.Errorf("separate audio: %w", err)
	}

	notes, err := p.pitch.Extract(ctx, stems.VocalKey)
	if err != nil {
		return nil, fmt.Errorf("extract pitch: %w", err)
	}

	fileURL, err := p.blobs.Presign(ctx, p.originalBucket, input.StorageKey, p.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("presign original: %w", err)
	}

	displayName := strings.TrimSuffix(input.OriginalFilename, filepath.Ext(input.OriginalFilename))

	return &domain.Result{
		Clef:             input.VocalType.Clef(),
		OriginalFilename: displayName,
		FileURL:          fileURL,
		Notes:            notes,
	}, nil
}
