package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/gorilla/mux"
	"github.com/remotetrail/job-board/internal/authoriser"
	"github.com/remotetrail/job-board/internal/job"
	"github.com/remotetrail/job-board/internal/media"
	"github.com/remotetrail/job-board/internal/middleware"
	"github.com/remotetrail/job-board/internal/seo"
	"github.com/remotetrail/job-board/internal/server"
	"github.com/snabb/sitemap"
)

const (
	sessionTTL  = 24 * time.Hour
	rssMaxItems = 20
)

func pageData(svr server.Server, r *http.Request, title string) map[string]interface{} {
	return map[string]interface{}{
		"Title":   title,
		"IsAdmin": middleware.IsSignedOn(r, svr.SessionStore, svr.GetJWTSigningKey()),
	}
}

func render(svr server.Server, w http.ResponseWriter, status int, view string, data map[string]interface{}) {
	if err := svr.Render(w, status, view, data); err != nil {
		svr.Log(err, fmt.Sprintf("unable to render %s", view))
	}
}

func renderNotFound(svr server.Server, w http.ResponseWriter, r *http.Request, msg string) {
	data := pageData(svr, r, "Not found")
	data["Message"] = msg
	render(svr, w, http.StatusNotFound, "not-found.html", data)
}

func findJob(jobs []*job.Job, id string) *job.Job {
	for _, j := range jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func IndexPageHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := svc.List()
		if err != nil {
			svr.Log(err, "unable to retrieve jobs for index page")
			svr.TEXT(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		data := pageData(svr, r, "Remote jobs")
		data["Listing"] = job.NewListing(jobs, job.ParseFilterFromQuery(r.URL.Query()))
		render(svr, w, http.StatusOK, "landing.html", data)
	}
}

func JobPageHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := svc.List()
		if err != nil {
			svr.Log(err, "unable to retrieve jobs for job page")
			svr.TEXT(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		j := findJob(jobs, mux.Vars(r)["id"])
		if j == nil {
			renderNotFound(svr, w, r, "Job not found")
			return
		}
		data := pageData(svr, r, fmt.Sprintf("%s at %s", j.Title, j.Company))
		data["Job"] = j
		render(svr, w, http.StatusOK, "job.html", data)
	}
}

func ListJobsAsAdminPageHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return middleware.AdminAuthenticatedMiddleware(
		svr.SessionStore,
		svr.GetJWTSigningKey(),
		func(w http.ResponseWriter, r *http.Request) {
			jobs, err := svc.List()
			if err != nil {
				svr.Log(err, "unable to retrieve jobs for admin page")
				svr.TEXT(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			perPage := svr.GetConfig().JobsPerPage
			if perPage < 1 {
				perPage = 10
			}
			totalPages := (len(jobs) + perPage - 1) / perPage
			if totalPages < 1 {
				totalPages = 1
			}
			page, err := strconv.Atoi(r.URL.Query().Get("p"))
			if err != nil || page < 1 {
				page = 1
			}
			if page > totalPages {
				page = totalPages
			}
			offset := (page - 1) * perPage
			end := offset + perPage
			if end > len(jobs) {
				end = len(jobs)
			}
			data := pageData(svr, r, "Admin")
			data["Jobs"] = jobs[offset:end]
			data["Offset"] = offset
			data["Page"] = page
			data["TotalPages"] = totalPages
			if page > 1 {
				data["PrevPage"] = page - 1
			}
			if page < totalPages {
				data["NextPage"] = page + 1
			}
			render(svr, w, http.StatusOK, "admin.html", data)
		},
	)
}

func NewJobAsAdminPageHandler(svr server.Server) http.HandlerFunc {
	return middleware.AdminAuthenticatedMiddleware(
		svr.SessionStore,
		svr.GetJWTSigningKey(),
		func(w http.ResponseWriter, r *http.Request) {
			render(svr, w, http.StatusOK, "job-form.html", jobFormData(svr, r, nil))
		},
	)
}

func EditJobAsAdminPageHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return middleware.AdminAuthenticatedMiddleware(
		svr.SessionStore,
		svr.GetJWTSigningKey(),
		func(w http.ResponseWriter, r *http.Request) {
			j, err := svc.Get(mux.Vars(r)["id"])
			if errors.Is(err, job.ErrJobNotFound) {
				renderNotFound(svr, w, r, "Job not found")
				return
			}
			if err != nil {
				svr.Log(err, "unable to retrieve job for edit page")
				svr.TEXT(w, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			render(svr, w, http.StatusOK, "job-form.html", jobFormData(svr, r, j))
		},
	)
}

func jobFormData(svr server.Server, r *http.Request, j *job.Job) map[string]interface{} {
	data := pageData(svr, r, "New job")
	data["JobTypeOptions"] = withOption(job.JobTypeOptions, job.DefaultJobType)
	data["ExperienceOptions"] = withOption(job.ExperienceOptions, job.DefaultExperience)
	data["JobType"] = job.DefaultJobType
	data["Experience"] = job.DefaultExperience
	if j != nil {
		data["Title"] = "Edit " + j.Title
		data["Job"] = j
		data["JobTypeOptions"] = withOption(job.JobTypeOptions, j.JobType)
		data["ExperienceOptions"] = withOption(job.ExperienceOptions, j.Experience)
		data["JobType"] = j.JobType
		data["Experience"] = j.Experience
	}
	return data
}

// withOption keeps a stored value selectable when it is not one of the
// standard options.
func withOption(options []string, value string) []string {
	if value == "" {
		return options
	}
	for _, o := range options {
		if o == value {
			return options
		}
	}
	return append(append([]string{}, options...), value)
}

func GetAuthPageHandler(svr server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if middleware.IsSignedOn(r, svr.SessionStore, svr.GetJWTSigningKey()) {
			svr.Redirect(w, r, http.StatusFound, "/admin")
			return
		}
		render(svr, w, http.StatusOK, "auth.html", pageData(svr, r, "Sign in"))
	}
}

func PostAuthPageHandler(svr server.Server, auth authoriser.Authoriser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authRq := &authoriser.AuthRq{}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(authRq); err != nil {
			svr.JSON(w, http.StatusBadRequest, jobRes{Message: "Invalid request"})
			return
		}
		authRes := auth.ValidAuthRequest(authRq)
		if !authRes.Valid {
			svr.JSON(w, http.StatusUnauthorized, jobRes{Message: "Unauthorized"})
			return
		}
		sess, err := svr.SessionStore.Get(r, middleware.SessionName)
		if err != nil {
			svr.Log(err, "unable to get session")
		}
		ss, err := middleware.NewAdminJWT(authRes.Email, svr.GetJWTSigningKey(), sessionTTL)
		if err != nil {
			svr.Log(err, "unable to sign admin jwt")
			svr.JSON(w, http.StatusInternalServerError, jobRes{Message: "Internal Server Error"})
			return
		}
		sess.Values["jwt"] = ss
		if err := sess.Save(r, w); err != nil {
			svr.Log(err, "unable to save session")
			svr.JSON(w, http.StatusInternalServerError, jobRes{Message: "Internal Server Error"})
			return
		}
		svr.JSON(w, http.StatusOK, jobRes{Success: true})
	}
}

func LogoutHandler(svr server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := svr.SessionStore.Get(r, middleware.SessionName)
		if err == nil {
			delete(sess.Values, "jwt")
			sess.Options.MaxAge = -1
			if err := sess.Save(r, w); err != nil {
				svr.Log(err, "unable to clear session")
			}
		}
		svr.Redirect(w, r, http.StatusFound, "/")
	}
}

func ServeRSSFeed(svr server.Server, svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := svc.List()
		if err != nil {
			svr.Log(err, "unable to retrieve jobs for RSS Feed")
			svr.XML(w, http.StatusInternalServerError, []byte{})
			return
		}
		cfg := svr.GetConfig()
		now := time.Now()
		feed := &feeds.Feed{
			Title:       fmt.Sprintf("%s Jobs", cfg.SiteName),
			Link:        &feeds.Link{Href: cfg.SiteURL("/")},
			Description: fmt.Sprintf("Latest remote jobs on %s", cfg.SiteName),
			Created:     now,
		}
		jobs = job.Active(jobs, now)
		if len(jobs) > rssMaxItems {
			jobs = jobs[:rssMaxItems]
		}
		for _, j := range jobs {
			description := j.Description
			if j.Salary != "" {
				description += "\n\n**Salary:** " + j.Salary
			}
			item := &feeds.Item{
				Id:          j.ID,
				Title:       fmt.Sprintf("%s with %s - %s", j.Title, j.Company, j.Location),
				Link:        &feeds.Link{Href: cfg.SiteURL("/job/" + j.ID)},
				Description: string(svr.MarkdownToHTML(description)),
				Created:     j.CreatedAt,
				Updated:     j.UpdatedAt,
			}
			if logo := j.LogoPath(); logo != "" {
				item.Enclosure = &feeds.Enclosure{Length: "0", Type: mime.TypeByExtension(path.Ext(logo)), Url: cfg.SiteURL(logo)}
			}
			feed.Items = append(feed.Items, item)
		}
		rssFeed, err := feed.ToRss()
		if err != nil {
			svr.Log(err, "unable to convert rss feed to xml")
			svr.XML(w, http.StatusInternalServerError, []byte{})
			return
		}
		svr.XML(w, http.StatusOK, []byte(rssFeed))
	}
}

func SitemapHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := svc.List()
		if err != nil {
			svr.Log(err, "unable to retrieve jobs for sitemap")
			svr.TEXT(w, http.StatusInternalServerError, "unable to fetch sitemap")
			return
		}
		sitemapFile := sitemap.New()
		for _, u := range seo.SitemapURLs(svr.GetConfig().SiteURL, jobs, time.Now()) {
			sitemapFile.Add(u)
		}
		buf := new(bytes.Buffer)
		if _, err := sitemapFile.WriteTo(buf); err != nil {
			svr.Log(err, "sitemapFile.WriteTo")
			svr.TEXT(w, http.StatusInternalServerError, "unable to save sitemap file")
			return
		}
		svr.XML(w, http.StatusOK, buf.Bytes())
	}
}

func RobotsTxtHandler(svr server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svr.TEXT(w, http.StatusOK, fmt.Sprintf("User-agent: *\nDisallow: /admin\nDisallow: /x/\nSitemap: %s\n", svr.GetConfig().SiteURL("/sitemap.xml")))
	}
}

func TriggerLogoSweep(svr server.Server, svc *job.Service, store *media.Store) http.HandlerFunc {
	return middleware.MachineAuthenticatedMiddleware(svr.GetConfig().MachineToken, func(w http.ResponseWriter, r *http.Request) {
		refs, err := svc.ReferencedLogos()
		if err != nil {
			svr.Log(err, "unable to collect referenced logos")
			svr.JSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
			return
		}
		removed, err := store.Sweep(refs, media.SweepGracePeriod)
		if err != nil {
			svr.Log(err, "unable to sweep logos")
			svr.JSON(w, http.StatusInternalServerError, map[string]interface{}{"status": "error", "removed": removed})
			return
		}
		svr.JSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "removed": removed})
	})
}

func DisableDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
