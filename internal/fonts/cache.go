package fonts

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when cachePayload format changes
const cacheSchemaVersion uint16 = 1

// DiskCache stores font indexes keyed by a digest of the scanned listing.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

type cachePayload struct {
	Schema uint16
	Fonts  []cachedFont
}

type cachedFont struct {
	Path   string
	Family string
	Style  string
	Size   int64
	Hash   []byte
}

// OpenDiskCache returns a cache under $XDG_CACHE_HOME/<app>/fonts.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return NewDiskCache(filepath.Join(base, app, "fonts"))
}

// NewDiskCache returns a cache rooted at dir, creating it if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, hex.EncodeToString(key[:])+".mp")
}

// Put writes the font list atomically.
func (c *DiskCache) Put(key Digest, fonts []Font) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload := cachePayload{Schema: cacheSchemaVersion, Fonts: make([]cachedFont, len(fonts))}
	for i, f := range fonts {
		payload.Fonts[i] = cachedFont{Path: f.Path, Family: f.Family, Style: f.Style, Size: f.Size, Hash: f.Hash[:]}
	}

	p := c.pathFor(key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		// после успешного Rename временного файла уже нет
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Get loads a font list. A missing entry or an entry written with another
// schema reports ok == false.
func (c *DiskCache) Get(key Digest) (fonts []Font, ok bool, err error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var payload cachePayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, false, err
	}
	if payload.Schema != cacheSchemaVersion {
		return nil, false, nil
	}
	fonts = make([]Font, len(payload.Fonts))
	for i, cf := range payload.Fonts {
		fonts[i] = Font{Path: cf.Path, Family: cf.Family, Style: cf.Style, Size: cf.Size}
		copy(fonts[i].Hash[:], cf.Hash)
	}
	return fonts, true, nil
}

// DropAll removes every cached index.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
