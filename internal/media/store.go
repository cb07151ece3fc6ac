package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/pkg/errors"
)

const (
	// URLPrefix is the public path under which stored files are served.
	URLPrefix = "/uploads/"

	// SweepGracePeriod keeps recent unreferenced files, which may belong to
	// a save still in flight.
	SweepGracePeriod = 24 * time.Hour
)

var ErrUnsupportedMediaType = errors.New("unsupported media type")

// AllowedMediaTypes maps the accepted sniffed content types to the extension
// used when the original name carries none.
var AllowedMediaTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Store keeps uploaded logos as plain files in a single directory.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) Dir() string {
	return s.dir
}

// FileName builds the stored name for an upload: a millisecond timestamp,
// the slugged base name and a lower case extension.
func FileName(now time.Time, originalName, contentType string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if !allowedExtensions[ext] {
		ext = AllowedMediaTypes[contentType]
	}
	name := slug.Make(base)
	if name == "" {
		name = "logo"
	}
	return fmt.Sprintf("%d_%s%s", now.UnixMilli(), name, ext)
}

// Put validates and writes an uploaded image, returning its public path.
func (s *Store) Put(data []byte, originalName string) (string, error) {
	contentType := http.DetectContentType(data)
	if _, ok := AllowedMediaTypes[contentType]; !ok {
		return "", errors.Wrapf(ErrUnsupportedMediaType, "%s is %s", originalName, contentType)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create uploads directory")
	}
	name := FileName(s.now(), originalName, contentType)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write logo %s", name)
	}
	return URLPrefix + name, nil
}

func (s *Store) fileName(ref string) (string, bool) {
	if !strings.HasPrefix(ref, URLPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, URLPrefix)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
		return "", false
	}
	return name, true
}

// Exists reports whether ref points to a stored file.
func (s *Store) Exists(ref string) bool {
	name, ok := s.fileName(ref)
	if !ok {
		return false
	}
	info, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Sweep removes stored files that are not referenced and were last modified
// more than olderThan ago. It returns the references of the removed files.
func (s *Store) Sweep(referenced map[string]struct{}, olderThan time.Duration) ([]string, error) {
	removed := []string{}
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return removed, nil
	}
	if err != nil {
		return removed, errors.Wrap(err, "failed to list uploads")
	}
	cutoff := s.now().Add(-olderThan)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ref := URLPrefix + e.Name()
		if _, ok := referenced[ref]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return removed, errors.Wrapf(err, "failed to stat %s", e.Name())
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return removed, errors.Wrapf(err, "failed to remove %s", e.Name())
		}
		removed = append(removed, ref)
	}
	return removed, nil
}
