package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyoonlab/notare/internal/adapter/http/validation"
	"github.com/soyoonlab/notare/internal/domain"
	"github.com/soyoonlab/notare/internal/infrastructure/logger"
	"github.com/soyoonlab/notare/internal/port"
	"github.com/soyoonlab/notare/internal/service"
)

// TranscriptionQueue is the slice of the queue service the HTTP layer uses.
type TranscriptionQueue interface {
	Submit(input domain.Submission) (*service.JobHandle, error)
	Status(id string) (*service.StatusView, error)
}

type Handlers struct {
	queue          TranscriptionQueue
	blobs          port.BlobStore
	originalBucket string
	maxSizeMB      int
}

func NewHandlers(queue TranscriptionQueue, blobs port.BlobStore, originalBucket string, maxSizeMB int) *Handlers {
	return &Handlers{
		queue:          queue,
		blobs:          blobs,
		originalBucket: originalBucket,
		maxSizeMB:      maxSizeMB,
	}
}

type errorResponse struct {
	Message string `json:"message"`
}

// Analyze accepts an uploaded track, stores the original, and enqueues a
// transcription job. The response carries the job id for status polling.
func (h *Handlers) Analyze() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := int64(h.maxSizeMB) * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		if err := r.ParseMultipartForm(maxBytes); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File too large (max %d MB).", h.maxSizeMB))
			return
		}

		file, header, err := r.FormFile("music_file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "A music file is required.")
			return
		}
		defer file.Close() //nolint:errcheck

		if header.Filename == "" {
			writeError(w, http.StatusBadRequest, "No file was selected.")
			return
		}

		if !validation.AllowedExtension(header.Filename) {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Unsupported file format. Supported formats: %s.", validation.AllowedFormats()))
			return
		}

		mime, allowed, err := validation.ValidateMagicBytes(file)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read the uploaded file.")
			return
		}
		if !allowed {
			logger.Warn.Printf("rejected upload %s: detected %s",
				logger.SanitizeForLog(header.Filename), mime)
			writeError(w, http.StatusBadRequest, "The file content is not a supported audio format.")
			return
		}

		vocalType := domain.VocalType(r.FormValue("vocal_type"))
		if vocalType == "" {
			vocalType = domain.VocalTypeFemale
		}
		if !vocalType.Valid() {
			writeError(w, http.StatusBadRequest, `vocal_type must be "female" or "male".`)
			return
		}

		filename := validation.SanitizeFilename(header.Filename)
		key := newStorageKey(filepath.Ext(filename))

		if err := h.blobs.Put(r.Context(), h.originalBucket, key, file, header.Size, mime); err != nil {
			logger.Error.Printf("failed to store upload %s: %v", logger.SanitizeForLog(filename), err)
			writeError(w, http.StatusInternalServerError, "Failed to store the uploaded file.")
			return
		}

		handle, err := h.queue.Submit(domain.Submission{
			OriginalFilename: filename,
			StorageKey:       key,
			ContentType:      mime,
			Namespace:        strings.TrimSuffix(key, filepath.Ext(key)),
			VocalType:        vocalType,
		})
		if err != nil {
			var rejection *service.RejectionError
			if errors.As(err, &rejection) {
				writeError(w, http.StatusServiceUnavailable, rejection.Error())
				return
			}
			logger.Error.Printf("submit failed for %s: %v", logger.SanitizeForLog(filename), err)
			writeError(w, http.StatusInternalServerError, "Failed to submit the job.")
			return
		}

		writeJSON(w, http.StatusAccepted, handle)
	}
}

// Status reports a job's current state for polling clients.
func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("job_id")

		view, err := h.queue.Status(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Job not found.")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to read job status.")
			return
		}

		writeJSON(w, http.StatusOK, view)
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// newStorageKey builds a unique object key for an original upload, keeping
// keys sortable by upload time.
func newStorageKey(ext string) string {
	timestamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s%s", timestamp, uuid.NewString()[:8], strings.ToLower(ext))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
