// Package validation provides upload validation for incoming audio tracks.
package validation

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
)

// ErrDisallowedFileType is returned when a file type is not in the allowlist.
var ErrDisallowedFileType = errors.New("file type not allowed")

// allowedExtensions is the set of upload extensions accepted, matching the
// formats the separation backend can decode.
var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
	".aac":  true,
}

// allowedMIMETypes is the allowlist of audio MIME types accepted for upload.
var allowedMIMETypes = map[string]bool{
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"application/ogg": true,
	"audio/wav":       true,
	"audio/wave":      true,
	"audio/x-wav":     true,
	"audio/flac":      true,
	"audio/x-flac":    true,
	"audio/aac":       true,
	"audio/mp4":       true,
	// m4a uses an MP4 container; stdlib detection reports it as video/mp4.
	"video/mp4": true,
}

// AllowedExtension reports whether the filename carries an accepted audio
// extension (case-insensitive).
func AllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// AllowedFormats returns the accepted formats as a display string for error
// messages, e.g. "AAC, FLAC, M4A, MP3, OGG, WAV".
func AllowedFormats() string {
	formats := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		formats = append(formats, strings.ToUpper(strings.TrimPrefix(ext, ".")))
	}
	sort.Strings(formats)
	return strings.Join(formats, ", ")
}

// magicBytesBufferSize is the number of bytes to read for content type detection.
const magicBytesBufferSize = 512

// ValidateMagicBytes validates a file's content type by reading its magic
// bytes. It uses http.DetectContentType for standard detection plus custom
// detection for audio formats the standard library does not recognize, then
// resets the reader to the beginning.
func ValidateMagicBytes(reader io.ReadSeeker) (mime string, allowed bool, err error) {
	buf := make([]byte, magicBytesBufferSize)
	n, err := reader.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}

	if n == 0 {
		return "application/octet-stream", false, nil
	}

	buf = buf[:n]

	mime = detectCustomMagicBytes(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
	}

	return mime, allowedMIMETypes[mime], nil
}

// detectCustomMagicBytes handles audio formats that http.DetectContentType
// misses or misreports.
func detectCustomMagicBytes(buf []byte) string {
	if len(buf) < 4 {
		return ""
	}

	// FLAC: starts with "fLaC"
	if buf[0] == 'f' && buf[1] == 'L' && buf[2] == 'a' && buf[3] == 'C' {
		return "audio/flac"
	}

	// ID3 tag (common for MP3): starts with "ID3"
	if buf[0] == 'I' && buf[1] == 'D' && buf[2] == '3' {
		return "audio/mpeg"
	}

	// Raw MPEG audio frame sync without a container
	if buf[0] == 0xFF {
		switch buf[1] & 0xFE {
		case 0xFA, 0xF2: // MPEG1/2 Layer 3
			return "audio/mpeg"
		case 0xF0, 0xF8: // ADTS AAC
			return "audio/aac"
		}
	}

	// MP4 container: ftyp box at offset 4. The M4A brand marks audio-only.
	if len(buf) >= 12 {
		if buf[4] == 'f' && buf[5] == 't' && buf[6] == 'y' && buf[7] == 'p' {
			if string(buf[8:12]) == "M4A " {
				return "audio/mp4"
			}
			return "video/mp4"
		}
	}

	return ""
}
