package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/remotetrail/job-board/internal/job"
	"github.com/remotetrail/job-board/internal/middleware"
	"github.com/remotetrail/job-board/internal/server"
)

// formOverhead is allowed on top of the logo size for the text fields.
const formOverhead = 1 << 20

var errLogoTooLarge = errors.New("logo file is too large")

type jobRes struct {
	Success bool     `json:"success"`
	Job     *job.Job `json:"job,omitempty"`
	Message string   `json:"message,omitempty"`
}

func ListJobsHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := svc.List()
		if err != nil {
			svr.Log(err, "unable to list jobs")
			svr.JSON(w, http.StatusInternalServerError, jobRes{Message: "Internal Server Error"})
			return
		}
		svr.JSON(w, http.StatusOK, jobs)
	}
}

func CreateJobHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return middleware.AdminAuthenticatedAPIMiddleware(
		svr.SessionStore,
		svr.GetJWTSigningKey(),
		func(w http.ResponseWriter, r *http.Request) {
			rq, logo, _, err := parseJobForm(w, r, svr.GetConfig().MaxLogoSize)
			if err != nil {
				writeFormError(svr, w, err)
				return
			}
			j, err := svc.Create(rq, logo)
			if err != nil {
				writeJobError(svr, w, err, "unable to create job")
				return
			}
			svr.JSON(w, http.StatusOK, jobRes{Success: true, Job: j})
		},
	)
}

func UpdateJobHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return middleware.AdminAuthenticatedAPIMiddleware(
		svr.SessionStore,
		svr.GetJWTSigningKey(),
		func(w http.ResponseWriter, r *http.Request) {
			id := mux.Vars(r)["id"]
			rq, logo, existingLogo, err := parseJobForm(w, r, svr.GetConfig().MaxLogoSize)
			if err != nil {
				writeFormError(svr, w, err)
				return
			}
			j, err := svc.Update(id, rq, logo, existingLogo)
			if err != nil {
				writeJobError(svr, w, err, fmt.Sprintf("unable to update job %s", id))
				return
			}
			svr.JSON(w, http.StatusOK, jobRes{Success: true, Job: j})
		},
	)
}

func DeleteJobHandler(svr server.Server, svc *job.Service) http.HandlerFunc {
	return middleware.AdminAuthenticatedAPIMiddleware(
		svr.SessionStore,
		svr.GetJWTSigningKey(),
		func(w http.ResponseWriter, r *http.Request) {
			id := mux.Vars(r)["id"]
			if err := svc.Delete(id); err != nil {
				writeJobError(svr, w, err, fmt.Sprintf("unable to delete job %s", id))
				return
			}
			svr.JSON(w, http.StatusOK, jobRes{Success: true})
		},
	)
}

func writeJobError(svr server.Server, w http.ResponseWriter, err error, msg string) {
	var verr *job.ValidationError
	switch {
	case errors.As(err, &verr):
		svr.JSON(w, http.StatusBadRequest, jobRes{Message: verr.Error()})
	case errors.Is(err, job.ErrJobNotFound):
		svr.JSON(w, http.StatusNotFound, jobRes{Message: "Job not found"})
	default:
		svr.Log(err, msg)
		svr.JSON(w, http.StatusInternalServerError, jobRes{Message: "Internal Server Error"})
	}
}

func writeFormError(svr server.Server, w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || errors.Is(err, errLogoTooLarge) {
		svr.JSON(w, http.StatusRequestEntityTooLarge, jobRes{Message: "Request is too large"})
		return
	}
	svr.JSON(w, http.StatusBadRequest, jobRes{Message: "Invalid form data"})
}

// parseJobForm reads a multipart or urlencoded job form. Fields absent from
// the request are left nil.
func parseJobForm(w http.ResponseWriter, r *http.Request, maxLogoSize int64) (job.JobRq, *job.Upload, *string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLogoSize+formOverhead)
	err := r.ParseMultipartForm(maxLogoSize)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return job.JobRq{}, nil, nil, err
	}
	field := func(name string) *string {
		vs, ok := r.PostForm[name]
		if !ok || len(vs) == 0 {
			return nil
		}
		v := vs[0]
		return &v
	}
	rq := job.JobRq{
		Title:       field("title"),
		Company:     field("company"),
		Location:    field("location"),
		Salary:      field("salary"),
		JobType:     field("jobType"),
		Experience:  field("experience"),
		Skills:      field("skills"),
		Description: field("description"),
		ApplyLink:   field("applyLink"),
	}
	logo, err := readLogo(r, maxLogoSize)
	if err != nil {
		return job.JobRq{}, nil, nil, err
	}
	return rq, logo, field("existingLogo"), nil
}

func readLogo(r *http.Request, maxLogoSize int64) (*job.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("logo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if header.Size > maxLogoSize {
		return nil, errLogoTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, maxLogoSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxLogoSize {
		return nil, errLogoTooLarge
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &job.Upload{Filename: header.Filename, Bytes: data}, nil
}
