package securestore

import (
	"context"
	"crypto/rand"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dmitrijs2005/cytoguard/internal/logging"
)

// DirSet is the process-wide Tracker. Whatever is still tracked at shutdown
// belongs to a store that was never cleaned up.
type DirSet struct {
	mu   sync.Mutex
	dirs map[string]struct{}
}

func NewDirSet() *DirSet {
	return &DirSet{dirs: make(map[string]struct{})}
}

func (d *DirSet) Track(dir string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirs[dir] = struct{}{}
}

func (d *DirSet) Untrack(dir string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dirs, dir)
}

// Dirs returns the tracked directories in lexical order.
func (d *DirSet) Dirs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.dirs))
	for dir := range d.dirs {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

func (d *DirSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dirs)
}

// Sweep shreds the files of every tracked directory, removes the directories
// and stops tracking them. It returns how many directories were removed.
func (d *DirSet) Sweep(ctx context.Context, logger logging.Logger) int {
	removed := 0
	for _, dir := range d.Dirs() {
		err := filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if e.Type().IsRegular() {
				if err := shred(p, rand.Reader); err != nil {
					logger.Warn(ctx, "secure delete failed", "path", p, "error", err)
				}
			}
			return nil
		})
		if err != nil {
			logger.Warn(ctx, "sweep walk failed", "dir", dir, "error", err)
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn(ctx, "sweep remove failed", "dir", dir, "error", err)
			continue
		}
		d.Untrack(dir)
		removed++
	}
	return removed
}
