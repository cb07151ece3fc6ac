package main

import (
	"io/fs"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/remotetrail/job-board/internal/authoriser"
	"github.com/remotetrail/job-board/internal/config"
	"github.com/remotetrail/job-board/internal/handler"
	"github.com/remotetrail/job-board/internal/job"
	"github.com/remotetrail/job-board/internal/media"
	"github.com/remotetrail/job-board/internal/server"
	"github.com/remotetrail/job-board/internal/template"
	"github.com/remotetrail/job-board/static"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("unable to load config: %+v", err)
	}
	svr, err := newServer(cfg)
	if err != nil {
		log.Fatalf("unable to set up server: %+v", err)
	}
	log.Fatal(svr.Run())
}

func newServer(cfg config.Config) (server.Server, error) {
	tmpl, err := template.NewTemplate(static.Views)
	if err != nil {
		return server.Server{}, err
	}
	assets, err := fs.Sub(static.Assets, "assets")
	if err != nil {
		return server.Server{}, err
	}
	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	auth := authoriser.NewAuthoriser(cfg)

	svr := server.NewServer(
		cfg,
		mux.NewRouter(),
		tmpl,
		sessionStore,
	)

	mediaStore := media.NewStore(cfg.UploadsDir)
	jobSvc := job.NewService(job.NewRepository(cfg.JobsFile), mediaStore, svr.Logger())
	jobSvc.UseCache(svr)

	svr.RegisterRoute("/sitemap.xml", handler.SitemapHandler(svr, jobSvc), []string{"GET"})
	svr.RegisterRoute("/robots.txt", handler.RobotsTxtHandler(svr), []string{"GET"})
	svr.RegisterRoute("/rss", handler.ServeRSSFeed(svr, jobSvc), []string{"GET"})

	svr.RegisterPathPrefix("/s/", handler.DisableDirListing(http.StripPrefix("/s/", http.FileServer(http.FS(assets)))), []string{"GET"})
	svr.RegisterPathPrefix(media.URLPrefix, handler.DisableDirListing(http.StripPrefix(media.URLPrefix, http.FileServer(http.Dir(cfg.UploadsDir)))), []string{"GET"})

	svr.RegisterRoute("/", handler.IndexPageHandler(svr, jobSvc), []string{"GET"})

	// view job by id
	svr.RegisterRoute("/job/{id}", handler.JobPageHandler(svr, jobSvc), []string{"GET"})

	//
	// job api
	//

	svr.RegisterRoute("/jobs", handler.ListJobsHandler(svr, jobSvc), []string{"GET"})

	// @admin: create job
	svr.RegisterRoute("/jobs", handler.CreateJobHandler(svr, jobSvc), []string{"POST"})

	// @admin: update job
	svr.RegisterRoute("/jobs/{id}", handler.UpdateJobHandler(svr, jobSvc), []string{"PUT"})

	// @admin: delete job
	svr.RegisterRoute("/jobs/{id}", handler.DeleteJobHandler(svr, jobSvc), []string{"DELETE"})

	//
	// auth routes
	//

	svr.RegisterRoute("/auth", handler.GetAuthPageHandler(svr), []string{"GET"})

	svr.RegisterRoute("/x/auth", handler.PostAuthPageHandler(svr, auth), []string{"POST"})

	svr.RegisterRoute("/logout", handler.LogoutHandler(svr), []string{"GET"})

	//
	// admin pages
	//

	svr.RegisterRoute("/admin", handler.ListJobsAsAdminPageHandler(svr, jobSvc), []string{"GET"})
	svr.RegisterRoute("/admin/new", handler.NewJobAsAdminPageHandler(svr), []string{"GET"})
	svr.RegisterRoute("/admin/edit/{id}", handler.EditJobAsAdminPageHandler(svr, jobSvc), []string{"GET"})

	//
	// tasks
	// protected by machine token
	//

	svr.RegisterRoute("/x/task/logo-sweep", handler.TriggerLogoSweep(svr, jobSvc, mediaStore), []string{"POST"})

	return svr, nil
}
