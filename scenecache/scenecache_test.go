package scenecache

import (
	"os"
	"testing"

	"github.com/jamesrr39/goutil/gofs/mockfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Put(t *testing.T) {
	fs := mockfs.NewMockFs()
	writeFile := fs.WriteFileFunc

	writes := 0
	fs.WriteFileFunc = func(path string, data []byte, perm os.FileMode) error {
		writes++
		return writeFile(path, data, perm)
	}

	cache := New(fs, "/cache")

	content := []byte("scene:\n  background:\n    color: '#ffffff'\n")

	key1, path1, err := cache.Put(content)
	require.NoError(t, err)

	key2, path2, err := cache.Put(content)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Equal(t, path1, path2)
	assert.Equal(t, "/cache/"+key1+".yaml", path1)
	assert.Equal(t, 1, writes)

	stored, err2 := fs.ReadFile(path1)
	require.NoError(t, err2)
	assert.Equal(t, content, stored)

	_, _, err = cache.Put([]byte("scene: {}"))
	require.NoError(t, err)
	assert.Equal(t, 2, writes)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Key(nil))
	assert.Len(t, Key([]byte("a")), 64)
	assert.NotEqual(t, Key([]byte("a")), Key([]byte("b")))
}
