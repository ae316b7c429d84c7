package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rimkus-dev/sentiment/internal/config"
)

// ErrUnsupportedSource is returned for source types without a downloader.
var ErrUnsupportedSource = errors.New("unsupported model source")

// Downloader fetches model files into a local directory.
type Downloader interface {
	// Download fetches src into targetDir and returns the local model path
	// and whether the download was skipped because the files were cached.
	Download(ctx context.Context, src config.ModelSource, targetDir string) (string, bool, error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeHuggingFace:
		return NewHuggingFaceDownloader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, sourceType)
	}
}

// EnsureModelsDirectory creates the models directory if it does not exist.
func EnsureModelsDirectory(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("models path %s is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	return os.MkdirAll(path, 0o755)
}
