package capture

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"wanderfield/simcore/internal/logging"
)

// Policy defines how many capture bundles are retained on disk.
type Policy struct {
	MaxSessions int
	MaxAge      time.Duration
}

// StorageStats summarises the disk footprint of persisted bundles.
type StorageStats struct {
	Sessions  int       `json:"sessions"`
	Bytes     int64     `json:"bytes"`
	LastSweep time.Time `json:"last_sweep"`
}

// Cleaner periodically prunes capture bundles according to a retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	root   string
	policy Policy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for the provided capture root directory.
func NewCleaner(root string, policy Policy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{root: root, policy: policy, log: logger, now: time.Now}
}

// Run executes retention sweeps until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	//1.- Perform an eager sweep so retention applies immediately on startup.
	c.sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// RunOnce performs a single retention sweep, primarily used for tests.
func (c *Cleaner) RunOnce() {
	if c == nil {
		return
	}
	c.sweep()
}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundleDir struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) sweep() {
	if c == nil || strings.TrimSpace(c.root) == "" {
		return
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		c.log.Warn("capture retention scan failed", logging.Error(err), logging.String("directory", c.root))
		return
	}
	bundles := c.collect(entries)
	now := c.now()
	kept := 0
	stats := StorageStats{LastSweep: now}
	for _, bundle := range bundles {
		shouldRemove, reason := c.shouldRemove(bundle, now, kept)
		if shouldRemove {
			if err := os.RemoveAll(bundle.path); err != nil {
				c.log.Warn("capture retention removal failed", logging.Error(err), logging.String("bundle", bundle.name))
				//1.- A bundle that survives removal still occupies disk, so keep counting it.
				stats.Sessions++
				stats.Bytes += bundle.size
				kept++
			} else {
				c.log.Info("capture retention removed bundle", logging.String("bundle", bundle.name), logging.String("reason", reason))
			}
			continue
		}
		kept++
		stats.Sessions++
		stats.Bytes += bundle.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

func (c *Cleaner) collect(entries []os.DirEntry) []bundleDir {
	bundles := make([]bundleDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			//1.- Only bundle directories participate in retention; stray files stay put.
			continue
		}
		path := filepath.Join(c.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			c.log.Warn("capture retention stat failed", logging.Error(err), logging.String("path", path))
			continue
		}
		size, err := directorySize(path)
		if err != nil {
			c.log.Warn("capture retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		bundles = append(bundles, bundleDir{name: entry.Name(), path: path, size: size, modTime: info.ModTime()})
	}
	//2.- Sort newest-first so retention limits favour recent sessions.
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.After(bundles[j].modTime) })
	return bundles
}

func (c *Cleaner) shouldRemove(bundle bundleDir, now time.Time, kept int) (bool, string) {
	reasons := make([]string, 0, 2)
	if c.policy.MaxAge > 0 && now.Sub(bundle.modTime) > c.policy.MaxAge {
		reasons = append(reasons, fmt.Sprintf("age>%s", c.policy.MaxAge))
	}
	if c.policy.MaxSessions > 0 && kept >= c.policy.MaxSessions {
		reasons = append(reasons, fmt.Sprintf(">=%d sessions", c.policy.MaxSessions))
	}
	return len(reasons) > 0, strings.Join(reasons, ", ")
}

func directorySize(root string) (int64, error) {
	var total int64
	walkErr := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, walkErr
}
