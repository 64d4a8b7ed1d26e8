package tempfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tubesum/internal/logger"
	"tubesum/internal/models"
)

const (
	DefaultTTL             = time.Hour
	DefaultCleanupInterval = 15 * time.Minute

	filePrefix = "audio-"
)

// Manager hands out unique scratch paths under one directory and removes them.
type Manager struct {
	dir    string
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

// NewManager creates dir if absent. ttl bounds how long an orphaned file may
// linger before the cleaner removes it.
func NewManager(dir string, ttl time.Duration, log logger.Logger) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("temp directory must be provided")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory %s: %w", dir, err)
	}
	return &Manager{
		dir:    dir,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
	}, nil
}

func (m *Manager) Dir() string {
	return m.dir
}

// DirExists reports whether the temp directory is present on disk.
func (m *Manager) DirExists() bool {
	info, err := os.Stat(m.dir)
	return err == nil && info.IsDir()
}

// Reserve returns a fresh path; nothing is written yet. Uniqueness comes from
// the millisecond timestamp plus a random UUID.
func (m *Manager) Reserve(ext string) (*models.TempAudioFile, error) {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "mp3"
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate temp file id: %w", err)
	}
	now := m.now()
	name := fmt.Sprintf("%s%d-%s.%s", filePrefix, now.UnixMilli(), id.String(), ext)
	return &models.TempAudioFile{
		Path:      filepath.Join(m.dir, name),
		CreatedAt: now,
	}, nil
}

// Release deletes the file together with any sibling sharing its stem, such
// as the downloader's .part or .temp leftovers. Safe on nil, on never-written
// paths and on repeated calls; failures are logged and never returned.
func (m *Manager) Release(ctx context.Context, file *models.TempAudioFile) {
	if file == nil || file.Path == "" {
		return
	}
	for _, path := range m.siblings(ctx, file.Path) {
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				m.logger.Warn(ctx, "Failed to cleanup temp file %s: %v", path, err)
			}
			continue
		}
		m.logger.Debug(ctx, "Cleaned up temp file: %s", path)
	}
}

// siblings lists path plus every entry in its directory named <stem>.*.
// A directory listing is used instead of a glob so that pattern characters
// in the temp dir are taken literally.
func (m *Manager) siblings(ctx context.Context, path string) []string {
	paths := []string{path}
	dir, base := filepath.Split(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return paths
	}
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn(ctx, "Failed to list temp dir %s: %v", dir, err)
		}
		return paths
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, stem+".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}

// StartCleaner periodically removes audio files older than the TTL, which
// only exist if a previous process died mid-request.
func (m *Manager) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go m.cleanupLoop(ctx, interval)
}

func (m *Manager) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.cleanupExpired(ctx); err != nil {
				m.logger.Error(ctx, "cleanup temp files error: %v", err)
			} else if n > 0 {
				m.logger.Info(ctx, "Removed %d stale temp files", n)
			}
		}
	}
}

func (m *Manager) cleanupExpired(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn(ctx, "remove stale temp file %s failed: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
