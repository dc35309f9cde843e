// Package aubio extracts note events from a vocal stem by running an
// aubionotes-style command line tool and parsing its output.
package aubio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/soyoonlab/notare/internal/domain"
	"github.com/soyoonlab/notare/internal/infrastructure/logger"
	"github.com/soyoonlab/notare/internal/port"
)

type Extractor struct {
	command         string
	blobs           port.BlobStore
	separatedBucket string
}

func NewExtractor(command string, blobs port.BlobStore, separatedBucket string) *Extractor {
	if command == "" {
		command = "aubionotes"
	}
	return &Extractor{
		command:         command,
		blobs:           blobs,
		separatedBucket: separatedBucket,
	}
}

func (e *Extractor) Extract(ctx context.Context, vocalKey string) ([]domain.Note, error) {
	path, err := e.downloadVocal(ctx, vocalKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			logger.Warn.Printf("failed to remove temp file %s: %v", path, err)
		}
	}()

	cmd := exec.CommandContext(ctx, e.command, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", e.command, err, stderr.String())
	}

	notes := parseNotes(stdout.String())
	notes = domain.FilterShortNotes(notes)
	logger.Info.Printf("pitch extraction found %d notes in %s", len(notes), vocalKey)
	return notes, nil
}

func (e *Extractor) downloadVocal(ctx context.Context, vocalKey string) (string, error) {
	obj, err := e.blobs.Get(ctx, e.separatedBucket, vocalKey)
	if err != nil {
		return "", fmt.Errorf("fetch vocal stem %s: %w", vocalKey, err)
	}
	defer obj.Close()

	tmp, err := os.CreateTemp("", "notare-vocal-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, obj); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return tmp.Name(), nil
}

// parseNotes reads aubionotes output: one note per line as
// "MIDI ONSET OFFSET", whitespace separated. Lines with fewer fields (the
// leading onset timestamp, trailing blanks) and pitches outside the MIDI
// range are skipped.
func parseNotes(out string) []domain.Note {
	var notes []domain.Note
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		midi, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		onset, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		offset, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		name := domain.MIDINoteName(int(math.Round(midi)))
		if name == "" || offset <= onset {
			continue
		}
		notes = append(notes, domain.NewNote(name, onset, offset))
	}
	return notes
}

var _ port.PitchExtractor = (*Extractor)(nil)
