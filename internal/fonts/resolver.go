package fonts

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
)

var fontExts = map[string]bool{".ttf": true, ".otf": true, ".ttc": true, ".otc": true}

// Resolver scans font directories.
type Resolver struct {
	Dirs  []string
	Cache *DiskCache // optional
	Jobs  int        // parallel hashing; 0 means GOMAXPROCS
	Log   *slog.Logger
}

type listing struct {
	path    string
	size    int64
	modTime int64
}

// Resolve scans the directories and returns the font book. Missing
// directories are skipped. A cached index is reused when the listing (paths,
// sizes, modification times) is unchanged.
func (r *Resolver) Resolve(ctx context.Context) (*Book, error) {
	files, err := r.scan()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return NewBook(nil), nil
	}

	key := listingKey(files)
	if cached, ok, err := r.Cache.Get(key); err != nil {
		r.logger().Warn("font cache unreadable", "error", err)
	} else if ok {
		return NewBook(cached), nil
	}

	jobs := r.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// индексы уникальны для каждой горутины, мьютекс не нужен
	fonts := make([]Font, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, file := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			sum, err := hashFile(file.path)
			if err != nil {
				return fmt.Errorf("hash font %s: %w", file.path, err)
			}
			base := strings.TrimSuffix(filepath.Base(file.path), filepath.Ext(file.path))
			family, style := ParseName(base)
			fonts[i] = Font{Path: file.path, Family: family, Style: style, Size: file.size, Hash: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.Cache.Put(key, fonts); err != nil {
		r.logger().Warn("font cache not written", "error", err)
	}
	return NewBook(fonts), nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

func (r *Resolver) scan() ([]listing, error) {
	var files []listing
	for _, dir := range r.Dirs {
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !fontExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, listing{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	// Сортируем для детерминированного ключа
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

func listingKey(files []listing) Digest {
	h := blake3.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.path, f.size, f.modTime)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

func hashFile(path string) (Digest, error) {
	// #nosec G304 -- path comes from the configured font directories
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, err
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out, nil
}
