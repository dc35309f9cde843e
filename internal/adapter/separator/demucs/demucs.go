// Package demucs implements source separation by shelling out to a local
// demucs installation, for deployments that run the model on the same host
// instead of calling a remote analysis server.
package demucs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/soyoonlab/notare/internal/infrastructure/logger"
	"github.com/soyoonlab/notare/internal/port"
)

type Separator struct {
	command         string
	blobs           port.BlobStore
	originalBucket  string
	separatedBucket string
}

func NewSeparator(command string, blobs port.BlobStore, originalBucket, separatedBucket string) *Separator {
	if command == "" {
		command = "demucs"
	}
	return &Separator{
		command:         command,
		blobs:           blobs,
		originalBucket:  originalBucket,
		separatedBucket: separatedBucket,
	}
}

func (s *Separator) Separate(ctx context.Context, storageKey, namespace string) (port.Stems, error) {
	workDir, err := os.MkdirTemp("", "notare-demucs-*")
	if err != nil {
		return port.Stems{}, fmt.Errorf("create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn.Printf("failed to clean up %s: %v", workDir, err)
		}
	}()

	inputPath := filepath.Join(workDir, filepath.Base(storageKey))
	if err := s.downloadOriginal(ctx, storageKey, inputPath); err != nil {
		return port.Stems{}, err
	}

	outDir := filepath.Join(workDir, "separated")
	if err := s.run(ctx, inputPath, outDir); err != nil {
		return port.Stems{}, err
	}

	// demucs writes <outDir>/<model>/<track>/{vocals.wav,no_vocals.wav};
	// the model directory name depends on the installed default.
	vocalPath, err := findStem(outDir, "vocals.wav")
	if err != nil {
		return port.Stems{}, err
	}
	instrumentalPath, err := findStem(outDir, "no_vocals.wav")
	if err != nil {
		return port.Stems{}, err
	}

	stems := port.Stems{
		VocalKey:        namespace + "/vocal.wav",
		InstrumentalKey: namespace + "/instrumental.wav",
	}
	if err := s.uploadStem(ctx, vocalPath, stems.VocalKey); err != nil {
		return port.Stems{}, err
	}
	if err := s.uploadStem(ctx, instrumentalPath, stems.InstrumentalKey); err != nil {
		return port.Stems{}, err
	}
	return stems, nil
}

func (s *Separator) run(ctx context.Context, inputPath, outDir string) error {
	args := []string{
		"--two-stems", "vocals",
		"-o", outDir,
		inputPath,
	}
	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", s.command, err, stderr.String())
	}
	return nil
}

func (s *Separator) downloadOriginal(ctx context.Context, storageKey, dest string) error {
	obj, err := s.blobs.Get(ctx, s.originalBucket, storageKey)
	if err != nil {
		return fmt.Errorf("fetch original %s: %w", storageKey, err)
	}
	defer obj.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create input file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, obj); err != nil {
		return fmt.Errorf("write input file: %w", err)
	}
	return nil
}

func (s *Separator) uploadStem(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open stem %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat stem %s: %w", path, err)
	}

	if err := s.blobs.Put(ctx, s.separatedBucket, key, f, info.Size(), "audio/wav"); err != nil {
		return fmt.Errorf("upload stem %s: %w", key, err)
	}
	return nil
}

// findStem locates a produced stem file anywhere under the output directory.
func findStem(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan separation output: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("separation produced no %s", name)
	}
	return found, nil
}

var _ port.Separator = (*Separator)(nil)
