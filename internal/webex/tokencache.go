package webex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// ErrNoCredential is returned by FileCache.Load when no cache file exists.
var ErrNoCredential = errors.New("no cached credential")

// Credential is a bearer access token and the instant it stops being valid.
// ExpireAt is epoch milliseconds, matching the cache file format.
type Credential struct {
	AccessToken string `json:"access_token"`
	ExpireAt    int64  `json:"expire_at"`
}

// Expired reports whether the credential must not be used at now.
// A credential without a token is always expired.
func (c Credential) Expired(now time.Time) bool {
	return c.AccessToken == "" || now.UnixMilli() >= c.ExpireAt
}

// ExpiresAt returns ExpireAt as a time.
func (c Credential) ExpiresAt() time.Time {
	return time.UnixMilli(c.ExpireAt)
}

// FileCache persists a Credential as a single JSON object.
type FileCache struct {
	path string
}

// NewFileCache returns a cache stored at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

// Path returns the cache file location.
func (f *FileCache) Path() string { return f.path }

// Load reads the cached credential.
func (f *FileCache) Load() (Credential, error) {
	var c Credential
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, ErrNoCredential
	}
	if err != nil {
		return c, fmt.Errorf("reading token cache: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, fmt.Errorf("decoding token cache %s: %w", f.path, err)
	}
	return c, nil
}

// Save replaces the cache file with c. The new content is written to a
// temporary file in the same directory and renamed over the target, so a
// failed write never leaves a truncated cache behind.
func (f *FileCache) Save(c Credential) (err error) {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding token cache: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("creating token cache: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing token cache: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing token cache: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod token cache: %w", err)
	}
	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing token cache: %w", err)
	}
	return nil
}
