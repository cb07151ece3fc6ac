package job

import (
	"strings"
	"time"
)

const (
	DefaultJobType    = "Full-time"
	DefaultExperience = "Entry level"

	// ExpiryPeriod is how long a job stays active after creation.
	ExpiryPeriod = 14 * 24 * time.Hour

	StatusDraft   = "Draft"
	StatusActive  = "Active"
	StatusExpired = "Expired"
)

// JobTypeOptions and ExperienceOptions are offered by the admin form. Stored
// records may carry any other value.
var (
	JobTypeOptions    = []string{"Full-time", "Part-time", "Contract", "Freelance", "Internship", "Remote"}
	ExperienceOptions = []string{"Entry level", "1-3 years", "3-5 years", "5-7 years", "7+ years"}
)

type Job struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Salary      string     `json:"salary"`
	JobType     string     `json:"jobType"`
	Experience  string     `json:"experience"`
	Skills      string     `json:"skills"`
	Description string     `json:"description"`
	ApplyLink   string     `json:"applyLink"`
	Logo        *string    `json:"logo"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// JobRq carries the fields submitted by the admin form. A nil field was not
// submitted and is left untouched on update.
type JobRq struct {
	Title       *string
	Company     *string
	Location    *string
	Salary      *string
	JobType     *string
	Experience  *string
	Skills      *string
	Description *string
	ApplyLink   *string
}

// Upload is a logo file received with a create or update request.
type Upload struct {
	Filename string
	Bytes    []byte
}

// Status derives the display status from the expiry at the given time.
func (j *Job) Status(now time.Time) string {
	switch {
	case j.ExpiresAt == nil:
		return StatusDraft
	case j.ExpiresAt.Before(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// SkillList splits the comma separated skills, dropping blanks.
func (j *Job) SkillList() []string {
	skills := make([]string, 0)
	for _, s := range strings.Split(j.Skills, ",") {
		if s = strings.TrimSpace(s); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// Initials is shown in place of a missing company logo.
func (j *Job) Initials() string {
	words := strings.Fields(j.Company)
	if len(words) > 1 {
		var b strings.Builder
		for _, w := range words {
			b.WriteRune([]rune(w)[0])
		}
		return strings.ToUpper(b.String())
	}
	runes := []rune(strings.TrimSpace(j.Company))
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes))
}

// LogoPath returns the logo reference or an empty string.
func (j *Job) LogoPath() string {
	if j.Logo == nil {
		return ""
	}
	return *j.Logo
}

func (rq JobRq) apply(j *Job) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&j.Title, rq.Title)
	set(&j.Company, rq.Company)
	set(&j.Location, rq.Location)
	set(&j.Salary, rq.Salary)
	set(&j.JobType, rq.JobType)
	set(&j.Experience, rq.Experience)
	set(&j.Skills, rq.Skills)
	set(&j.Description, rq.Description)
	set(&j.ApplyLink, rq.ApplyLink)
}
