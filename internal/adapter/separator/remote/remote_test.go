package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlobs struct {
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (m *memBlobs) EnsureBucket(context.Context, string) error { return nil }

func (m *memBlobs) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memBlobs) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Presign(context.Context, string, string, time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

func TestSeparate_SavesBothStems(t *testing.T) {
	var gotUpload []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/tracks/analyze":
			file, _, err := r.FormFile("music_file")
			require.NoError(t, err)
			gotUpload, err = io.ReadAll(file)
			require.NoError(t, err)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"vocal_url":"/files/vocal.wav","mr_url":"/files/mr.wav"}`))
		case "/files/vocal.wav":
			_, _ = w.Write([]byte("vocal-bytes"))
		case "/files/mr.wav":
			_, _ = w.Write([]byte("mr-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.objects["original-tracks/track.mp3"] = []byte("original-audio")

	sep := NewSeparator(srv.URL, blobs, "original-tracks", "separated-tracks", 10*time.Second)
	stems, err := sep.Separate(context.Background(), "track.mp3", "track")

	require.NoError(t, err)
	assert.Equal(t, "track/vocal.wav", stems.VocalKey)
	assert.Equal(t, "track/instrumental.wav", stems.InstrumentalKey)
	assert.Equal(t, []byte("original-audio"), gotUpload, "original audio is posted to the analysis server")
	assert.Equal(t, []byte("vocal-bytes"), blobs.objects["separated-tracks/track/vocal.wav"])
	assert.Equal(t, []byte("mr-bytes"), blobs.objects["separated-tracks/track/instrumental.wav"])
}

func TestSeparate_VocalOnlyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/tracks/analyze":
			_, _ = w.Write([]byte(`{"vocal_url":"/files/vocal.wav"}`))
		case "/files/vocal.wav":
			_, _ = w.Write([]byte("vocal-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.objects["original-tracks/track.mp3"] = []byte("original-audio")

	sep := NewSeparator(srv.URL, blobs, "original-tracks", "separated-tracks", 10*time.Second)
	stems, err := sep.Separate(context.Background(), "track.mp3", "track")

	require.NoError(t, err)
	assert.Equal(t, "track/vocal.wav", stems.VocalKey)
	assert.Empty(t, stems.InstrumentalKey)
}

func TestSeparate_MissingVocalStem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.objects["original-tracks/track.mp3"] = []byte("original-audio")

	sep := NewSeparator(srv.URL, blobs, "original-tracks", "separated-tracks", 10*time.Second)
	_, err := sep.Separate(context.Background(), "track.mp3", "track")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vocal stem")
}

func TestSeparate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	blobs := newMemBlobs()
	blobs.objects["original-tracks/track.mp3"] = []byte("original-audio")

	sep := NewSeparator(srv.URL, blobs, "original-tracks", "separated-tracks", 10*time.Second)
	_, err := sep.Separate(context.Background(), "track.mp3", "track")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis server returned")
}

func TestSeparate_MissingOriginal(t *testing.T) {
	sep := NewSeparator("http://127.0.0.1:1", newMemBlobs(), "original-tracks", "separated-tracks", time.Second)
	_, err := sep.Separate(context.Background(), "absent.mp3", "absent")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch original")
}
