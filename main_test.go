package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/remotetrail/job-board/internal/config"
	"github.com/remotetrail/job-board/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type apiRes struct {
	Success bool     `json:"success"`
	Job     *job.Job `json:"job"`
	Message string   `json:"message"`
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	dir := t.TempDir()
	return config.Config{
		Port:              "0",
		Env:               "dev",
		JobsFile:          filepath.Join(dir, "data", "jobs.json"),
		UploadsDir:        filepath.Join(dir, "public", "uploads"),
		SessionKey:        []byte("0123456789abcdef0123456789abcdef"),
		JwtSigningKey:     []byte("jwt-signing-key"),
		AdminEmail:        "admin@example.com",
		AdminPasswordHash: hash,
		MachineToken:      "machine",
		SiteName:          "RemoteTrail",
		SiteHost:          "localhost",
		URLProtocol:       "http://",
		JobsPerPage:       10,
		JobsCacheTTL:      time.Minute,
		MaxLogoSize:       5 * 1024 * 1024,
	}
}

func newTestHandler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	svr, err := newServer(cfg)
	require.NoError(t, err)
	return svr.Handler()
}

func serve(h http.Handler, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/x/auth", strings.NewReader(`{"email":"admin@example.com","password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, logo []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if logo != nil {
		fw, err := mw.CreateFormFile("logo", "Acme Logo.png")
		require.NoError(t, err)
		_, err = fw.Write(logo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jobFields() map[string]string {
	return map[string]string{
		"title":       "Go Developer",
		"company":     "Acme",
		"location":    "Remote",
		"salary":      "$120k",
		"jobType":     "Contract",
		"skills":      "Go, Postgres, Docker, Kubernetes",
		"description": "Write **Go** code.",
		"applyLink":   "https://acme.example/apply",
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiRes {
	t.Helper()
	var res apiRes
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func createJob(t *testing.T, h http.Handler, cookies []*http.Cookie, logo []byte) *job.Job {
	t.Helper()
	rec := serve(h, multipartRequest(t, http.MethodPost, "/jobs", jobFields(), logo), cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)
	require.True(t, res.Success)
	require.NotNil(t, res.Job)
	return res.Job
}

func listJobs(t *testing.T, h http.Handler) []*job.Job {
	t.Helper()
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/jobs", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := []*job.Job{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	return jobs
}

func TestJobsAPI_Lifecycle(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)

	created := createJob(t, h, cookies, pngBytes(t))
	assert.Equal(t, "Go Developer", created.Title)
	assert.Equal(t, "Contract", created.JobType)
	assert.Equal(t, job.DefaultExperience, created.Experience)
	require.NotNil(t, created.ExpiresAt)
	assert.True(t, created.CreatedAt.Add(14*24*time.Hour).Equal(*created.ExpiresAt))
	logo := created.LogoPath()
	assert.Regexp(t, `^/uploads/\d{13}_acme-logo\.png$`, logo)

	rec := serve(h, httptest.NewRequest(http.MethodGet, logo, nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	jobs := listJobs(t, h)
	require.Len(t, jobs, 1)
	assert.Equal(t, created.ID, jobs[0].ID)

	form := url.Values{"title": {"Senior Go Developer"}}
	req := httptest.NewRequest(http.MethodPut, "/jobs/"+created.ID, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(h, req, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec).Job
	assert.Equal(t, "Senior Go Developer", updated.Title)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	assert.Equal(t, logo, updated.LogoPath())
	assert.Equal(t, "Acme", updated.Company)

	assert.Equal(t, "Senior Go Developer", listJobs(t, h)[0].Title)

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/jobs/"+created.ID, nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodDelete, "/jobs/"+created.ID, nil), cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Job not found"}`, rec.Body.String())

	assert.Empty(t, listJobs(t, h))
}

func TestJobsAPI_Unauthorized(t *testing.T) {
	h := newTestHandler(t, testConfig(t))

	for _, req := range []*http.Request{
		multipartRequest(t, http.MethodPost, "/jobs", jobFields(), nil),
		httptest.NewRequest(http.MethodPut, "/jobs/abc", nil),
		httptest.NewRequest(http.MethodDelete, "/jobs/abc", nil),
	} {
		rec := serve(h, req, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Unauthorized"}`, rec.Body.String())
	}
}

func TestJobsAPI_Validation(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)

	fields := jobFields()
	delete(fields, "title")
	fields["applyLink"] = "nope"
	rec := serve(h, multipartRequest(t, http.MethodPost, "/jobs", fields, nil), cookies)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res := decode(t, rec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "title")
	assert.Contains(t, res.Message, "applyLink")
	assert.Empty(t, listJobs(t, h))
}

func TestJobsAPI_UpdateMissingJob(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)

	rec := serve(h, multipartRequest(t, http.MethodPut, "/jobs/missing", map[string]string{"title": "x"}, nil), cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Job not found"}`, rec.Body.String())
}

func TestJobsAPI_ExistingLogo(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)
	created := createJob(t, h, cookies, pngBytes(t))

	rec := serve(h, multipartRequest(t, http.MethodPut, "/jobs/"+created.ID, map[string]string{"existingLogo": "/uploads/forged.png"}, nil), cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, multipartRequest(t, http.MethodPut, "/jobs/"+created.ID, map[string]string{"existingLogo": ""}, nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec).Job.Logo)
}

func TestJobsAPI_EditKeepsLogoWhoseFileIsGone(t *testing.T) {
	cfg := testConfig(t)
	h := newTestHandler(t, cfg)
	cookies := login(t, h)
	created := createJob(t, h, cookies, pngBytes(t))
	logo := created.LogoPath()
	require.NoError(t, os.Remove(filepath.Join(cfg.UploadsDir, strings.TrimPrefix(logo, "/uploads/"))))

	rec := serve(h, multipartRequest(t, http.MethodPut, "/jobs/"+created.ID, map[string]string{"title": "Senior", "existingLogo": logo}, nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec).Job
	assert.Equal(t, "Senior", updated.Title)
	assert.Equal(t, logo, updated.LogoPath())
}

func TestJobsAPI_UnsupportedLogoIsDropped(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)

	created := createJob(t, h, cookies, []byte("<html>not an image</html>"))
	assert.Nil(t, created.Logo)
}

func TestJobsAPI_LogoTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxLogoSize = 1024
	h := newTestHandler(t, cfg)
	cookies := login(t, h)

	rec := serve(h, multipartRequest(t, http.MethodPost, "/jobs", jobFields(), bytes.Repeat([]byte{0x89}, 4096)), cookies)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, listJobs(t, h))
}

func TestAuth(t *testing.T) {
	h := newTestHandler(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/x/auth", strings.NewReader(`{"email":"admin@example.com","password":"wrong"}`))
	rec := serve(h, req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/admin", nil), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/auth", rec.Header().Get("Location"))

	cookies := login(t, h)
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/auth", nil), cookies)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/logout", nil), cookies)
	assert.Equal(t, http.StatusFound, rec.Code)
	logoutCookies := rec.Result().Cookies()
	require.NotEmpty(t, logoutCookies)
	assert.True(t, logoutCookies[0].MaxAge < 0)
}

func TestPages(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)
	created := createJob(t, h, cookies, pngBytes(t))

	body := func(rec *httptest.ResponseRecorder) string {
		b, err := io.ReadAll(rec.Result().Body)
		require.NoError(t, err)
		return string(b)
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := body(rec)
	assert.Contains(t, page, "Go Developer")
	assert.Contains(t, page, "Kubernetes")
	assert.NotContains(t, page, "Show more")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/?q=rust", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = body(rec)
	assert.Contains(t, page, "Clear filters")
	assert.NotContains(t, page, "Go Developer")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/job/"+created.ID, nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "<strong>Go</strong>")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/job/missing", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/admin", nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	page = body(rec)
	assert.Contains(t, page, "Page 1 of 1")
	assert.Contains(t, page, job.StatusActive)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/admin/edit/"+created.ID, nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	page = body(rec)
	assert.Contains(t, page, `name="existingLogo"`)
	assert.Contains(t, page, `name="removeLogo"`)
	assert.Contains(t, page, created.LogoPath())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/admin/new", nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "Internship")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/rss", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "Go Developer with Acme - Remote")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body(rec), "http://localhost/job/"+created.ID)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/uploads/", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/s/admin.js", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoSweepTask(t *testing.T) {
	h := newTestHandler(t, testConfig(t))
	cookies := login(t, h)
	createJob(t, h, cookies, pngBytes(t))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/x/task/logo-sweep", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/x/task/logo-sweep", nil)
	req.Header.Set("x-machine-token", "machine")
	rec = serve(h, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","removed":[]}`, rec.Body.String())
}
