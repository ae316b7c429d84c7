package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rimkus-dev/sentiment/internal/config"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 5 * time.Minute
	markerFilename    = ".sentimentd-downloaded"
)

// HuggingFaceDownloader downloads a model from Hugging Face with the hf CLI.
type HuggingFaceDownloader struct {
	runner     CommandRunner
	binary     string
	retryDelay time.Duration
}

// NewHuggingFaceDownloader creates a downloader that shells out to "hf".
func NewHuggingFaceDownloader() *HuggingFaceDownloader {
	return &HuggingFaceDownloader{
		runner:     ExecCommandRunner{},
		binary:     "hf",
		retryDelay: defaultRetryDelay,
	}
}

// NewHuggingFaceDownloaderWithRunner creates a downloader with a custom runner.
func NewHuggingFaceDownloaderWithRunner(runner CommandRunner, retryDelay time.Duration) *HuggingFaceDownloader {
	return &HuggingFaceDownloader{
		runner:     runner,
		binary:     "hf",
		retryDelay: retryDelay,
	}
}

// Download downloads Hugging Face model to local cache.
func (d *HuggingFaceDownloader) Download(ctx context.Context, src config.ModelSource, targetDir string) (string, bool, error) {
	hfSource, ok := src.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", src)
	}

	repo := strings.TrimSpace(hfSource.Repo)
	if repo == "" || strings.Contains(repo, "..") {
		return "", false, fmt.Errorf("invalid repo name: %q", repo)
	}

	fullPath := filepath.Join(targetDir, filepath.FromSlash(repo))
	markerPath := filepath.Join(fullPath, markerFilename)
	markerContent := d.markerContent(repo, hfSource.Revision, hfSource.Include)

	if !hfSource.ForceDownload {
		if _, err := os.Stat(markerPath); err == nil {
			if !d.shouldRedownload(markerPath, markerContent) {
				slog.Info("Model already downloaded and up-to-date (marker match), skipping", "repo", repo, "path", fullPath)
				return fullPath, true, nil
			}
		}
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	args := d.buildArgs(hfSource, repo, fullPath)

	var lastErr error
	for attempt := range defaultMaxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", "repo", repo, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(d.retryDelay):
			}
		} else {
			slog.Info("Downloading model", "repo", repo, "path", fullPath)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		output, err := d.runner.CombinedOutput(attemptCtx, d.binary, args...)
		attemptErr := attemptCtx.Err()
		cancel()

		if err == nil {
			if err := os.WriteFile(markerPath, []byte(markerContent), 0o644); err != nil {
				slog.Warn("Failed to write download marker", "path", markerPath, "error", err)
			} else {
				slog.Debug("Download marker updated", "path", markerPath)
			}

			slog.Info("Model downloaded successfully", "repo", repo, "path", fullPath, "attempt", attempt+1)
			return fullPath, false, nil
		}

		lastErr = fmt.Errorf("hf download: %w: %s", err, strings.TrimSpace(string(output)))
		slog.Error("Failed to download model", "repo", repo, "path", fullPath, "attempt", attempt+1, "error", err, "output", string(output))

		if ctx.Err() != nil {
			return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
		}
		if errors.Is(attemptErr, context.DeadlineExceeded) {
			slog.Warn("Download timed out", "repo", repo, "path", fullPath, "attempt", attempt+1)
		}
	}

	return "", false, lastErr
}

func (d *HuggingFaceDownloader) buildArgs(src config.HuggingFaceSource, repo, fullPath string) []string {
	args := []string{
		"download",
		repo,
		"--local-dir", fullPath,
	}

	if src.Revision != "" {
		args = append(args, "--revision", src.Revision)
	}
	for _, inc := range src.Include {
		args = append(args, "--include", inc)
	}
	if src.ForceDownload {
		args = append(args, "--force-download")
	}
	if src.Token != "" {
		args = append(args, "--token", src.Token)
	}
	if src.MaxWorkers > 0 {
		args = append(args, "--max-workers", fmt.Sprintf("%d", src.MaxWorkers))
	}

	return args
}

// markerContent generates the expected content of the marker file.
// Used to detect if we need to redownload due to config change.
func (d *HuggingFaceDownloader) markerContent(repo, revision string, include []string) string {
	return fmt.Sprintf("repo: %s\nrevision: %s\ninclude: %s\n", repo, revision, strings.Join(include, ","))
}

// shouldRedownload checks if the model should be redownloaded by comparing marker content.
func (d *HuggingFaceDownloader) shouldRedownload(markerPath, expectedContent string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", markerPath, "error", err)
		return true
	}

	if string(content) != expectedContent {
		slog.Info("Model config changed (marker mismatch), will redownload",
			"marker_path", markerPath,
			"expected_snippet", expectedContent,
			"actual_snippet", string(content))
		return true
	}

	return false
}
