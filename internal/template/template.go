package template

import (
	stdtemplate "html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/remotetrail/job-board/internal/job"
	blackfriday "gopkg.in/russross/blackfriday.v2"
)

type Template struct {
	templates *stdtemplate.Template
	policy    *bluemonday.Policy
}

// NewTemplate parses every view under views/ in the given file system.
func NewTemplate(views fs.FS) (*Template, error) {
	t := &Template{policy: bluemonday.UGCPolicy()}
	funcMap := stdtemplate.FuncMap{
		"humanizeTime": humanize.Time,
		"markdown":     t.MarkdownToHTML,
		"status": func(j *job.Job) string {
			return j.Status(time.Now())
		},
		"take": func(n int, items []string) []string {
			if len(items) > n {
				return items[:n]
			}
			return items
		},
		"add": func(a, b int) int {
			return a + b
		},
		"isoDate": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
	}
	tmpl, err := stdtemplate.New("").Funcs(funcMap).ParseFS(views, "views/*.html")
	if err != nil {
		return nil, err
	}
	t.templates = tmpl
	return t, nil
}

func (t *Template) Render(w http.ResponseWriter, status int, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return t.templates.ExecuteTemplate(w, name, data)
}

// MarkdownToHTML renders markdown and strips anything unsafe for user
// generated content.
func (t *Template) MarkdownToHTML(s string) stdtemplate.HTML {
	return stdtemplate.HTML(t.policy.SanitizeBytes(blackfriday.Run([]byte(s))))
}
