package job

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Repository keeps the whole job collection in a single JSON document.
type Repository struct {
	path string
}

func NewRepository(path string) *Repository {
	return &Repository{path}
}

func (r *Repository) Path() string {
	return r.path
}

// Jobs loads the collection in persisted order. A missing document is an
// empty collection.
func (r *Repository) Jobs() ([]*Job, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return []*Job{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read jobs file %s", r.path)
	}
	jobs := []*Job{}
	if len(bytes.TrimSpace(data)) == 0 {
		return jobs, nil
	}
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, errors.Wrapf(err, "unable to decode jobs file %s", r.path)
	}
	return jobs, nil
}

// SaveJobs replaces the document with the given collection. The new content
// is written to a temporary file and renamed over the old one.
func (r *Repository) SaveJobs(jobs []*Job) error {
	if jobs == nil {
		jobs = []*Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode jobs")
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create jobs directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".jobs-*.json")
	if err != nil {
		return errors.Wrap(err, "unable to create temporary jobs file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to write temporary jobs file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "unable to sync temporary jobs file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close temporary jobs file")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "unable to set jobs file permissions")
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return errors.Wrapf(err, "unable to replace jobs file %s", r.path)
	}
	return nil
}

func indexOf(jobs []*Job, id string) int {
	for i, j := range jobs {
		if j.ID == id {
			return i
		}
	}
	return -1
}
