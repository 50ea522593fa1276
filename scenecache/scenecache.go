package scenecache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
)

const FileSuffix = ".yaml"

// Cache stores inline scene documents on disk, named after a hash of their content,
// so the engine can load them like any other scene file.
// Identical content is only written once.
type Cache struct {
	fs  gofs.Fs
	dir string
	mu  sync.Mutex
}

func New(fs gofs.Fs, dir string) *Cache {
	return &Cache{fs: fs, dir: dir}
}

// Key is the hex SHA-256 of content
func Key(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) PathForKey(key string) string {
	return filepath.Join(c.dir, key+FileSuffix)
}

// Put makes sure content is stored, and returns its key and path.
func (c *Cache) Put(content []byte) (string, string, errorsx.Error) {
	key := Key(content)
	path := c.PathForKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.fs.Stat(path)
	if err == nil {
		return key, path, nil
	}
	if !os.IsNotExist(err) {
		return "", "", errorsx.Wrap(err, "path", path)
	}

	err = c.fs.MkdirAll(c.dir, 0755)
	if err != nil {
		return "", "", errorsx.Wrap(err, "dir", c.dir)
	}

	tmpPath := path + ".tmp"
	err = c.fs.WriteFile(tmpPath, content, 0644)
	if err != nil {
		return "", "", errorsx.Wrap(err, "path", tmpPath)
	}

	err = c.fs.Rename(tmpPath, path)
	if err != nil {
		return "", "", errorsx.Wrap(err, "path", path)
	}

	return key, path, nil
}
