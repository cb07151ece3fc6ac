package job

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// CacheKey holds the encoded collection in the read cache.
	CacheKey = "jobs"
)

// Store loads and saves the whole job collection.
type Store interface {
	Jobs() ([]*Job, error)
	SaveJobs(jobs []*Job) error
}

// Cache keeps an encoded copy of the collection between writes.
type Cache interface {
	CacheGet(key string) ([]byte, bool)
	CacheSet(key string, val []byte) error
	CacheDelete(key string) error
}

// MediaStore persists uploaded logos and resolves logo references.
type MediaStore interface {
	Put(data []byte, originalName string) (string, error)
	Exists(ref string) bool
}

// Service owns every read-modify-write cycle on the job collection.
type Service struct {
	repo     Store
	media    MediaStore
	log      zerolog.Logger
	validate *validator.Validate
	mu       sync.Mutex

	cache      Cache
	cacheMu    sync.Mutex
	generation uint64

	now   func() time.Time
	newID func(time.Time) (string, error)
}

// jobForm mirrors the user editable fields for validation.
type jobForm struct {
	Title       string `json:"title" validate:"required"`
	Company     string `json:"company" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Skills      string `json:"skills" validate:"required"`
	Description string `json:"description" validate:"required"`
	ApplyLink   string `json:"applyLink" validate:"omitempty,url"`
}

func NewService(repo Store, media MediaStore, log zerolog.Logger) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return &Service{
		repo:     repo,
		media:    media,
		log:      log,
		validate: v,
		now:      time.Now,
		newID:    newJobID,
	}
}

func newJobID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(idAlphabet, 9)
	if err != nil {
		return "", errors.Wrap(err, "unable to generate job id")
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix), nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// UseCache makes List serve the collection from c until the next write.
func (s *Service) UseCache(c Cache) {
	s.cache = c
}

// List returns every job in persisted order.
func (s *Service) List() ([]*Job, error) {
	if s.cache == nil {
		return s.repo.Jobs()
	}
	if buf, ok := s.cache.CacheGet(CacheKey); ok {
		jobs := []*Job{}
		if err := json.Unmarshal(buf, &jobs); err == nil {
			return jobs, nil
		}
	}
	s.cacheMu.Lock()
	gen := s.generation
	s.cacheMu.Unlock()

	jobs, err := s.repo.Jobs()
	if err != nil {
		return nil, err
	}
	s.fillCache(gen, jobs)
	return jobs, nil
}

// fillCache stores jobs read at generation gen. A write that completed since
// then has bumped the generation and the stale copy is dropped.
func (s *Service) fillCache(gen uint64, jobs []*Job) {
	buf, err := json.Marshal(jobs)
	if err != nil {
		s.log.Warn().Err(err).Msg("unable to encode jobs for cache")
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.generation {
		return
	}
	if err := s.cache.CacheSet(CacheKey, buf); err != nil {
		s.log.Warn().Err(err).Msg("unable to set jobs cache")
	}
}

// invalidate runs after every successful save, with s.mu held.
func (s *Service) invalidate() {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if err := s.cache.CacheDelete(CacheKey); err != nil {
		s.log.Warn().Err(err).Msg("unable to delete jobs cache")
	}
}

// Get returns the job with the given id, read from the document.
func (s *Service) Get(id string) (*Job, error) {
	jobs, err := s.repo.Jobs()
	if err != nil {
		return nil, err
	}
	i := indexOf(jobs, id)
	if i < 0 {
		return nil, ErrJobNotFound
	}
	return jobs[i], nil
}

// Create validates rq, stores the optional logo and prepends the new job.
// The job expires ExpiryPeriod after creation.
func (s *Service) Create(rq JobRq, logo *Upload) (*Job, error) {
	j := &Job{}
	rq.apply(j)
	if err := s.check(j, nil); err != nil {
		return nil, err
	}
	if j.JobType == "" {
		j.JobType = DefaultJobType
	}
	if j.Experience == "" {
		j.Experience = DefaultExperience
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	id, err := s.newID(now)
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(ExpiryPeriod)
	j.ID = id
	j.CreatedAt = now
	j.UpdatedAt = now
	j.ExpiresAt = &expiresAt
	j.Logo = s.storeLogo(logo, nil)

	jobs, err := s.repo.Jobs()
	if err != nil {
		return nil, err
	}
	jobs = append([]*Job{j}, jobs...)
	if err := s.repo.SaveJobs(jobs); err != nil {
		return nil, err
	}
	s.invalidate()
	return j, nil
}

// Update merges the submitted fields into the stored job. A new logo upload
// wins over existingLogo; an empty existingLogo removes the logo. Any other
// existingLogo must be the job's current logo or a stored upload.
func (s *Service) Update(id string, rq JobRq, logo *Upload, existingLogo *string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.repo.Jobs()
	if err != nil {
		return nil, err
	}
	i := indexOf(jobs, id)
	if i < 0 {
		return nil, ErrJobNotFound
	}
	updated := *jobs[i]
	rq.apply(&updated)
	if err := s.check(&updated, rq.submitted()); err != nil {
		return nil, err
	}

	switch {
	case logo != nil && len(logo.Bytes) > 0:
		updated.Logo = s.storeLogo(logo, jobs[i].Logo)
	case existingLogo != nil && *existingLogo == "":
		updated.Logo = nil
	case existingLogo != nil && *existingLogo == jobs[i].LogoPath():
		// current logo, kept even when its file is gone
	case existingLogo != nil:
		if !s.media.Exists(*existingLogo) {
			return nil, &ValidationError{Invalid: []string{"existingLogo"}}
		}
		ref := *existingLogo
		updated.Logo = &ref
	}
	updated.UpdatedAt = s.timestamp()

	jobs[i] = &updated
	if err := s.repo.SaveJobs(jobs); err != nil {
		return nil, err
	}
	s.invalidate()
	return &updated, nil
}

// Delete removes the job. Its logo file stays until the next sweep.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.repo.Jobs()
	if err != nil {
		return err
	}
	i := indexOf(jobs, id)
	if i < 0 {
		return ErrJobNotFound
	}
	jobs = append(jobs[:i], jobs[i+1:]...)
	if err := s.repo.SaveJobs(jobs); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// ReferencedLogos returns the logo paths used by stored jobs.
func (s *Service) ReferencedLogos() (map[string]struct{}, error) {
	jobs, err := s.repo.Jobs()
	if err != nil {
		return nil, err
	}
	refs := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if j.Logo != nil && *j.Logo != "" {
			refs[*j.Logo] = struct{}{}
		}
	}
	return refs, nil
}

// storeLogo writes the upload and returns its reference. On failure the
// fallback reference is returned.
func (s *Service) storeLogo(logo *Upload, fallback *string) *string {
	if logo == nil || len(logo.Bytes) == 0 {
		return fallback
	}
	ref, err := s.media.Put(logo.Bytes, logo.Filename)
	if err != nil {
		s.log.Warn().Err(err).Str("filename", logo.Filename).Msg("unable to store logo")
		return fallback
	}
	return &ref
}

// check validates j. A non-nil fields restricts the check to those struct
// fields of jobForm.
func (s *Service) check(j *Job, fields []string) error {
	form := jobForm{
		Title:       strings.TrimSpace(j.Title),
		Company:     strings.TrimSpace(j.Company),
		Location:    strings.TrimSpace(j.Location),
		Skills:      strings.TrimSpace(j.Skills),
		Description: strings.TrimSpace(j.Description),
		ApplyLink:   strings.TrimSpace(j.ApplyLink),
	}
	var err error
	if fields == nil {
		err = s.validate.Struct(form)
	} else {
		if len(fields) == 0 {
			return nil
		}
		err = s.validate.StructPartial(form, fields...)
	}
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errors.Wrap(err, "unable to validate job")
	}
	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			verr.Missing = append(verr.Missing, fe.Field())
		} else {
			verr.Invalid = append(verr.Invalid, fe.Field())
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// submitted lists the jobForm fields present in rq.
func (rq JobRq) submitted() []string {
	fields := make([]string, 0)
	add := func(name string, v *string) {
		if v != nil {
			fields = append(fields, name)
		}
	}
	add("Title", rq.Title)
	add("Company", rq.Company)
	add("Location", rq.Location)
	add("Skills", rq.Skills)
	add("Description", rq.Description)
	add("ApplyLink", rq.ApplyLink)
	return fields
}
