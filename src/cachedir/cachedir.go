// Package cachedir resolves the on-disk location of a project's dependency
// database and implements the collaborator-facing cache info/clear operations.
package cachedir

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
)

// appName names the cache directory this tool owns under the user's cache root.
const appName = "taut"

// Dir returns the cache root for the project rooted at the current working
// directory: <user-cache-dir>/taut/<project-hash>/, falling back to
// .cache/taut/<project-hash> under cwd if no user cache directory is available.
func Dir() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	hash := projectHash(cwd)

	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, appName, hash)
	}
	return filepath.Join(cwd, ".cache", appName, hash)
}

// Ensure creates the project's cache root if it doesn't already exist.
func Ensure() (string, error) {
	dir := Dir()
	if err := os.MkdirAll(dir, 0775); err != nil {
		return "", err
	}
	return dir, nil
}

// projectHash returns the first 16 hex characters of the SHA-256 hash of the
// absolute working directory path, isolating one project's cache from another's.
func projectHash(cwd string) string {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		abs = cwd
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}

// Stats describes the current contents of the project's cache directory.
type Stats struct {
	Dir       string
	Exists    bool
	SizeBytes uint64
	FileCount int
}

// HumanSize renders SizeBytes the way a person would want to read it, e.g. "128 kB".
func (s Stats) HumanSize() string {
	return humanize.Bytes(s.SizeBytes)
}

// Info walks the cache directory and reports its size and file count.
func Info() Stats {
	dir := Dir()
	stats := Stats{Dir: dir}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return stats
	}
	stats.Exists = true
	filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil
		}
		stats.SizeBytes += uint64(fi.Size())
		stats.FileCount++
		return nil
	})
	return stats
}

// Clear removes the project's entire cache directory tree and returns what was
// removed, for the collaborator's `cache clear` to report.
func Clear() (Stats, error) {
	stats := Info()
	if stats.Exists {
		if err := os.RemoveAll(stats.Dir); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
