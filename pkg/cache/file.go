package cache

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"
)

// entryHeaderSize is the fixed prefix of every cache file: the expiry as
// big-endian unix seconds, 0 meaning no expiry. Converted outputs are raw
// binary streams (sixel, PNG), so entries store the data verbatim after the
// header rather than wrapping it in an encoding.
const entryHeaderSize = 8

// FileCache stores converted outputs on disk, one file per key, sharded
// into subdirectories by key hash so no single directory grows unbounded.
type FileCache struct {
	dir string
}

// NewFileCache creates a file-based cache rooted at dir, creating the
// directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileCache{dir: dir}, nil
}

// Dir returns the directory the cache stores entries under.
func (c *FileCache) Dir() string {
	return c.dir
}

// Get retrieves a value from the cache. Expired or malformed entries are
// removed and reported as misses.
func (c *FileCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := c.path(key)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(raw) < entryHeaderSize {
		_ = os.Remove(path)
		return nil, false, nil
	}

	if exp := binary.BigEndian.Uint64(raw); exp != 0 && time.Now().Unix() > int64(exp) {
		_ = os.Remove(path)
		return nil, false, nil
	}

	return raw[entryHeaderSize:], true, nil
}

// Set stores a value in the cache. A ttl of 0 stores the value without
// expiry, which suits content-addressed keys that can never go stale.
func (c *FileCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var exp uint64
	if ttl != 0 {
		exp = uint64(time.Now().Add(ttl).Unix())
	}

	entry := make([]byte, entryHeaderSize+len(data))
	binary.BigEndian.PutUint64(entry, exp)
	copy(entry[entryHeaderSize:], data)

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, entry, 0644)
}

// Delete removes a value from the cache.
func (c *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Close does nothing for file cache.
func (c *FileCache) Close() error {
	return nil
}

// path maps a key to its file, using the first two hash characters as a
// shard directory.
func (c *FileCache) path(key string) string {
	hash := Hash([]byte(key))
	return filepath.Join(c.dir, hash[:2], hash[2:]+".bin")
}

// Ensure FileCache implements Cache.
var _ Cache = (*FileCache)(nil)
