package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"tubesum/internal/apperr"
	"tubesum/internal/config"
	"tubesum/internal/executor"
	"tubesum/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"

// Downloader materializes the audio track of a video with yt-dlp.
type Downloader struct {
	exec        executor.Executor
	logger      logger.Logger
	binary      string
	cookiesPath string
	audioFormat string
	timeout     time.Duration
	slots       chan struct{}
}

func NewDownloader(cfg config.DownloaderConfig, exec executor.Executor, log logger.Logger) *Downloader {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	format := cfg.AudioFormat
	if format == "" {
		format = "mp3"
	}
	return &Downloader{
		exec:        exec,
		logger:      log,
		binary:      cfg.BinaryPath,
		cookiesPath: cfg.CookiesPath,
		audioFormat: format,
		timeout:     cfg.Timeout(),
		slots:       make(chan struct{}, maxConcurrent),
	}
}

// AudioFormat is the extension yt-dlp converts to.
func (d *Downloader) AudioFormat() string {
	return d.audioFormat
}

// Acquire downloads the audio of url into destPath. All failures are
// AcquisitionError; an empty result is left for the caller to detect.
func (d *Downloader) Acquire(ctx context.Context, url, destPath string) error {
	bin, err := d.exec.LookPath(d.binary)
	if err != nil {
		return apperr.Wrap(apperr.KindAcquisition, err, "downloader unavailable")
	}

	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	case <-ctx.Done():
		return apperr.Wrap(apperr.KindAcquisition, ctx.Err(), "download aborted")
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	d.logger.Info(ctx, "Downloading audio: %s -> %s", url, destPath)
	if _, err := d.exec.Execute(ctx, bin, d.args(url, destPath)...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindAcquisition, err, "download timed out")
		}
		return apperr.Wrap(apperr.KindAcquisition, err, "failed to download audio")
	}
	d.logger.Info(ctx, "Audio downloaded in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

func (d *Downloader) args(url, destPath string) []string {
	args := []string{
		"--extract-audio",
		"--audio-format", d.audioFormat,
		"--audio-quality", "0",
		"--output", destPath,
		"--no-check-certificates",
		"--no-warnings",
		"--prefer-free-formats",
		"--no-playlist",
		"--no-part",
		"--add-header", "referer:youtube.com",
		"--add-header", "user-agent:" + userAgent,
	}
	if d.cookiesPath != "" {
		if _, err := os.Stat(d.cookiesPath); err == nil {
			args = append(args, "--cookies", d.cookiesPath)
		}
	}
	return append(args, "--", url)
}

func (d *Downloader) String() string {
	return fmt.Sprintf("yt-dlp(%s)", d.binary)
}
