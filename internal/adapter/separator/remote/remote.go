// Package remote implements source separation against an external analysis
// server. The original audio is posted as multipart form data; the server
// answers with download paths for the vocal and instrumental stems, which are
// fetched and persisted into the separated bucket.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/soyoonlab/notare/internal/port"
)

type Separator struct {
	baseURL         string
	blobs           port.BlobStore
	originalBucket  string
	separatedBucket string
	httpClient      *http.Client
}

// analyzeResponse is the analysis server's reply. The URLs are paths relative
// to the server's base URL.
type analyzeResponse struct {
	VocalURL        string `json:"vocal_url"`
	InstrumentalURL string `json:"mr_url"`
}

func NewSeparator(baseURL string, blobs port.BlobStore, originalBucket, separatedBucket string, timeout time.Duration) *Separator {
	return &Separator{
		baseURL:         strings.TrimRight(baseURL, "/"),
		blobs:           blobs,
		originalBucket:  originalBucket,
		separatedBucket: separatedBucket,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

func (s *Separator) Separate(ctx context.Context, storageKey, namespace string) (port.Stems, error) {
	audio, err := s.readOriginal(ctx, storageKey)
	if err != nil {
		return port.Stems{}, err
	}

	resp, err := s.analyze(ctx, storageKey, audio)
	if err != nil {
		return port.Stems{}, err
	}
	if resp.VocalURL == "" {
		return port.Stems{}, fmt.Errorf("analysis server returned no vocal stem for %s", storageKey)
	}

	stems := port.Stems{VocalKey: namespace + "/vocal.wav"}
	if err := s.saveStem(ctx, resp.VocalURL, stems.VocalKey); err != nil {
		return port.Stems{}, fmt.Errorf("save vocal stem: %w", err)
	}

	if resp.InstrumentalURL != "" {
		stems.InstrumentalKey = namespace + "/instrumental.wav"
		if err := s.saveStem(ctx, resp.InstrumentalURL, stems.InstrumentalKey); err != nil {
			return port.Stems{}, fmt.Errorf("save instrumental stem: %w", err)
		}
	}

	return stems, nil
}

func (s *Separator) readOriginal(ctx context.Context, storageKey string) ([]byte, error) {
	obj, err := s.blobs.Get(ctx, s.originalBucket, storageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch original %s: %w", storageKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read original %s: %w", storageKey, err)
	}
	return data, nil
}

func (s *Separator) analyze(ctx context.Context, filename string, audio []byte) (*analyzeResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("music_file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/tracks/analyze", &body)
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis server request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis server returned %s", resp.Status)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}
	return &parsed, nil
}

// saveStem downloads one stem from the analysis server and stores it under
// the separated bucket.
func (s *Separator) saveStem(ctx context.Context, stemPath, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+stemPath, nil)
	if err != nil {
		return fmt.Errorf("build stem request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download stem: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stem download returned %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read stem: %w", err)
	}

	return s.blobs.Put(ctx, s.separatedBucket, key, bytes.NewReader(data), int64(len(data)), "audio/wav")
}

var _ port.Separator = (*Separator)(nil)
