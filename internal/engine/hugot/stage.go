package hugot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rimkus-dev/sentiment/internal/engine"
)

// stageRoot is the directory under a model repo that holds the per-dtype
// layouts handed to hugot.
const stageRoot = ".hugot"

// stageModel assembles a directory hugot can load for one dtype: the
// tokenizer and config files of the repo next to a single ONNX file.
// hugot looks the weights up by base name at the top of the model path, so
// repos that keep them under onnx/ cannot be loaded in place. It returns
// the staged directory and the base name of the weights file.
func stageModel(repoPath, onnxFile string, dtype engine.DType) (string, string, error) {
	dir := filepath.Join(repoPath, stageRoot, dtype.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create staging directory %s: %w", dir, err)
	}

	entries, err := os.ReadDir(repoPath)
	if err != nil {
		return "", "", fmt.Errorf("read model directory %s: %w", repoPath, err)
	}

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".onnx") {
			continue
		}
		if err := linkFile(filepath.Join(repoPath, e.Name()), filepath.Join(dir, e.Name())); err != nil {
			return "", "", err
		}
	}

	name := filepath.Base(filepath.FromSlash(onnxFile))
	if err := linkFile(filepath.Join(repoPath, filepath.FromSlash(onnxFile)), filepath.Join(dir, name)); err != nil {
		return "", "", err
	}

	return dir, name, nil
}

// linkFile hard links src to dst, copying when a link is not possible.
// Symlinked sources are resolved first. Directories are skipped.
func linkFile(src, dst string) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", src, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("stat %s: %w", resolved, err)
	}
	if info.IsDir() {
		return nil
	}

	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", dst, err)
	}

	if err := os.Link(resolved, dst); err == nil {
		return nil
	}

	return copyFile(resolved, dst)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	return nil
}
