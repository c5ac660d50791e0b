package storage

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

	"github.com/rs/zerolog"
)

// ArchivePruner evicts old calls from the local archive by age and total size.
// When an S3 backup exists a file is only removed once S3 has it.
type ArchivePruner struct {
	dir       string
	retention time.Duration
	maxBytes  int64
	interval  time.Duration
	s3        *S3Store
	now       func() time.Time
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewArchivePruner(dir string, retention time.Duration, maxGB int, s3 *S3Store, log zerolog.Logger) *ArchivePruner {
	return &ArchivePruner{
		dir:       dir,
		retention: retention,
		maxBytes:  int64(maxGB) * 1024 * 1024 * 1024,
		interval:  time.Hour,
		s3:        s3,
		now:       time.Now,
		log:       log.With().Str("component", "archive-pruner").Logger(),
		stop:      make(chan struct{}),
	}
}

func (p *ArchivePruner) Start() {
	go p.loop()
}

func (p *ArchivePruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *ArchivePruner) loop() {
	p.prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.prune()
		case <-p.stop:
			return
		}
	}
}

type archivedFile struct {
	path    string
	key     string
	modTime time.Time
	size    int64
}

func (p *ArchivePruner) scan() ([]archivedFile, int64) {
	var files []archivedFile
	var total int64
	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.dir, path)
		if err != nil {
			return nil
		}
		files = append(files, archivedFile{path: path, key: filepath.ToSlash(rel), modTime: info.ModTime(), size: info.Size()})
		total += info.Size()
		return nil
	})
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	return files, total
}

// prune returns the number of files removed.
func (p *ArchivePruner) prune() int {
	if p.retention == 0 && p.maxBytes == 0 {
		return 0
	}

	cutoff := p.now().Add(-p.retention)
	files, total := p.scan()
	var removed, skipped int
	var freed int64

	for _, f := range files {
		expired := p.retention > 0 && f.modTime.Before(cutoff)
		oversize := p.maxBytes > 0 && total > p.maxBytes
		if !expired && !oversize {
			// Oldest first: nothing newer qualifies either.
			break
		}
		if p.s3 != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			backedUp := p.s3.Has(ctx, f.key)
			cancel()
			if !backedUp {
				skipped++
				p.log.Warn().Str("key", f.key).Msg("keeping call not yet in S3")
				continue
			}
		}
		if err := os.Remove(f.path); err == nil {
			removed++
			freed += f.size
			total -= f.size
		}
	}

	p.removeEmptyDirs()

	if removed > 0 || skipped > 0 {
		p.log.Info().
			Int("pruned", removed).
			Str("freed", humanizeBytes(freed)).
			Str("remaining", humanizeBytes(total)).
			Int("skipped_not_in_s3", skipped).
			Msg("archive prune complete")
	}
	return removed
}

// removeEmptyDirs clears {system}/{date} directories left empty.
func (p *ArchivePruner) removeEmptyDirs() {
	systems, _ := os.ReadDir(p.dir)
	for _, sys := range systems {
		if !sys.IsDir() {
			continue
		}
		sysPath := filepath.Join(p.dir, sys.Name())
		days, _ := os.ReadDir(sysPath)
		for _, day := range days {
			if !day.IsDir() {
				continue
			}
			dayPath := filepath.Join(sysPath, day.Name())
			if rest, _ := os.ReadDir(dayPath); len(rest) == 0 {
				os.Remove(dayPath)
			}
		}
		if rest, _ := os.ReadDir(sysPath); len(rest) == 0 {
			os.Remove(sysPath)
		}
	}
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
