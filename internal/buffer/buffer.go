// Package buffer spools telemetry that could not be published. Each batch
// is written as a timestamped JSON file so it survives restarts; the spool
// drops its oldest batches once it reaches its size limit.
package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Natclanwy/cc-sfs/internal/models"
)

const fileExt = ".json"

// Buffer is a directory of spooled status batches.
type Buffer struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger

	mu  sync.Mutex
	seq int
}

// New creates the spool directory if needed. maxSizeMB <= 0 disables the
// size limit.
func New(dir string, maxSizeMB int, logger *zap.Logger) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Buffer{
		dir:      dir,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		logger:   logger.Named("buffer"),
	}, nil
}

// Store writes one batch. Older batches are dropped while the spool is over
// its limit.
func (b *Buffer) Store(batch []models.SensorStatus) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxBytes > 0 {
		for b.sizeBytes()+int64(len(data)) > b.maxBytes {
			if !b.dropOldest() {
				break
			}
		}
	}

	b.seq++
	name := fmt.Sprintf("%s-%06d%s", time.Now().UTC().Format("20060102T150405.000"), b.seq, fileExt)
	return os.WriteFile(filepath.Join(b.dir, name), data, 0640)
}

// RetrieveAll returns every spooled batch oldest first and removes them.
// Unreadable files are removed and skipped.
func (b *Buffer) RetrieveAll() ([][]models.SensorStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names, err := b.files()
	if err != nil {
		return nil, err
	}

	var batches [][]models.SensorStatus
	for _, name := range names {
		path := filepath.Join(b.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("Failed to read spool file", zap.String("file", path), zap.Error(err))
			continue
		}

		var batch []models.SensorStatus
		if err := json.Unmarshal(data, &batch); err != nil {
			b.logger.Warn("Removing corrupted spool file", zap.String("file", path), zap.Error(err))
			os.Remove(path)
			continue
		}
		batches = append(batches, batch)
		os.Remove(path)
	}
	return batches, nil
}

// Count returns the number of spooled batches.
func (b *Buffer) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	names, err := b.files()
	if err != nil {
		return 0
	}
	return len(names)
}

// files lists spool files in name order, which is chronological. Must be
// called with b.mu held.
func (b *Buffer) files() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == fileExt {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Must be called with b.mu held.
func (b *Buffer) sizeBytes() int64 {
	names, err := b.files()
	if err != nil {
		return 0
	}
	var total int64
	for _, name := range names {
		if info, err := os.Stat(filepath.Join(b.dir, name)); err == nil {
			total += info.Size()
		}
	}
	return total
}

// dropOldest removes one batch. Must be called with b.mu held.
func (b *Buffer) dropOldest() bool {
	names, err := b.files()
	if err != nil || len(names) == 0 {
		return false
	}
	path := filepath.Join(b.dir, names[0])
	if err := os.Remove(path); err != nil {
		b.logger.Warn("Failed to remove oldest spool file", zap.String("file", path), zap.Error(err))
		return false
	}
	b.logger.Warn("Spool full, dropped oldest batch", zap.String("file", path))
	return true
}
