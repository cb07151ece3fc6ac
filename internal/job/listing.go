package job

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// FacetAll disables a facet filter.
	FacetAll = "all"

	DefaultVisible = 10
	VisibleStep    = 10
)

// Filter holds the listing controls of the public page.
type Filter struct {
	Query      string
	JobType    string
	Experience string
	Visible    int
}

func NewFilter() Filter {
	return Filter{JobType: FacetAll, Experience: FacetAll, Visible: DefaultVisible}
}

// ParseFilterFromQuery reads q, type, exp and n. A missing or too small n
// falls back to the default window.
func ParseFilterFromQuery(query url.Values) Filter {
	f := NewFilter()
	f.Query = strings.TrimSpace(query.Get("q"))
	if v := strings.TrimSpace(query.Get("type")); v != "" {
		f.JobType = v
	}
	if v := strings.TrimSpace(query.Get("exp")); v != "" {
		f.Experience = v
	}
	if n, err := strconv.Atoi(query.Get("n")); err == nil && n > DefaultVisible {
		f.Visible = n
	}
	return f
}

// Values encodes the filter back into query parameters, omitting defaults.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Query != "" {
		v.Set("q", f.Query)
	}
	if f.JobType != "" && f.JobType != FacetAll {
		v.Set("type", f.JobType)
	}
	if f.Experience != "" && f.Experience != FacetAll {
		v.Set("exp", f.Experience)
	}
	if f.Visible > DefaultVisible {
		v.Set("n", strconv.Itoa(f.Visible))
	}
	return v
}

func (f Filter) ShowMore() Filter {
	f.Visible += VisibleStep
	return f
}

func (f Filter) Reset() Filter {
	return NewFilter()
}

// IsFiltered reports whether any search or facet is active.
func (f Filter) IsFiltered() bool {
	return f.Query != "" || facetActive(f.JobType) || facetActive(f.Experience)
}

func facetActive(v string) bool {
	return v != "" && v != FacetAll
}

// Matches applies the search query and both facets to a single job.
func (f Filter) Matches(j *Job) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(j.Title), q) &&
			!strings.Contains(strings.ToLower(j.Company), q) &&
			!strings.Contains(strings.ToLower(j.Skills), q) {
			return false
		}
	}
	if facetActive(f.JobType) && j.JobType != f.JobType {
		return false
	}
	if facetActive(f.Experience) && j.Experience != f.Experience {
		return false
	}
	return true
}

// Apply returns the matching jobs newest first, before windowing.
func (f Filter) Apply(jobs []*Job) []*Job {
	matched := make([]*Job, 0, len(jobs))
	for _, j := range SortByCreatedAt(jobs) {
		if f.Matches(j) {
			matched = append(matched, j)
		}
	}
	return matched
}

// SortByCreatedAt returns a copy of jobs ordered newest first. Jobs with
// equal creation times keep their relative order.
func SortByCreatedAt(jobs []*Job) []*Job {
	sorted := make([]*Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].CreatedAt.After(sorted[k].CreatedAt)
	})
	return sorted
}

// Active returns the jobs with status Active at now, newest first.
func Active(jobs []*Job, now time.Time) []*Job {
	active := make([]*Job, 0, len(jobs))
	for _, j := range SortByCreatedAt(jobs) {
		if j.Status(now) == StatusActive {
			active = append(active, j)
		}
	}
	return active
}

// Facets returns the distinct non-empty job types and experience levels in
// first seen order.
func Facets(jobs []*Job) (jobTypes []string, experiences []string) {
	jobTypes, experiences = []string{}, []string{}
	seenTypes, seenExp := map[string]bool{}, map[string]bool{}
	for _, j := range jobs {
		if j.JobType != "" && !seenTypes[j.JobType] {
			seenTypes[j.JobType] = true
			jobTypes = append(jobTypes, j.JobType)
		}
		if j.Experience != "" && !seenExp[j.Experience] {
			seenExp[j.Experience] = true
			experiences = append(experiences, j.Experience)
		}
	}
	return jobTypes, experiences
}

// LastUpdated returns the most recent update time, zero for no jobs.
func LastUpdated(jobs []*Job) time.Time {
	var last time.Time
	for _, j := range jobs {
		if j.UpdatedAt.After(last) {
			last = j.UpdatedAt
		}
	}
	return last
}

type Listing struct {
	Jobs        []*Job
	Total       int
	HasMore     bool
	JobTypes    []string
	Experiences []string
	Filter      Filter
	LastUpdated time.Time
}

func NewListing(jobs []*Job, f Filter) Listing {
	if f.Visible < DefaultVisible {
		f.Visible = DefaultVisible
	}
	matched := f.Apply(jobs)
	types, exps := Facets(jobs)
	visible := matched
	if len(visible) > f.Visible {
		visible = visible[:f.Visible]
	}
	return Listing{
		Jobs:        visible,
		Total:       len(matched),
		HasMore:     len(matched) > f.Visible,
		JobTypes:    types,
		Experiences: exps,
		Filter:      f,
		LastUpdated: LastUpdated(jobs),
	}
}
