package config

import (
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/userextra"
)

type PathsConfig struct {
	CacheDir string `yaml:"cacheDir"`
	TraceDir string `yaml:"traceDir"`
}

// ExpandPaths resolves a leading '~' in each path
func (pc *PathsConfig) ExpandPaths() errorsx.Error {
	for _, path := range []*string{&pc.CacheDir, &pc.TraceDir} {
		expanded, err := userextra.ExpandUser(*path)
		if err != nil {
			return errorsx.Wrap(err, "path", *path)
		}
		*path = expanded
	}

	return nil
}

func (pc *PathsConfig) EnsurePaths(fs gofs.Fs) errorsx.Error {
	for _, dirPath := range []string{pc.CacheDir, pc.TraceDir} {
		if dirPath == "" {
			continue
		}

		err := fs.MkdirAll(dirPath, 0755)
		if err != nil {
			return errorsx.Wrap(err, "path", dirPath)
		}
	}

	return nil
}
