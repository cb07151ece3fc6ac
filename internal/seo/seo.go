package seo

import (
	"time"

	"github.com/remotetrail/job-board/internal/job"
	"github.com/snabb/sitemap"
)

// StaticPages are the public paths listed in the sitemap besides the index
// and job pages.
func StaticPages() []string {
	return []string{
		"rss",
	}
}

// SitemapURLs returns the index page, the static pages and one entry per
// active job. siteURL turns a path into an absolute URL.
func SitemapURLs(siteURL func(string) string, jobs []*job.Job, now time.Time) []*sitemap.URL {
	lastMod := job.LastUpdated(jobs)
	if lastMod.IsZero() {
		lastMod = now
	}
	urls := []*sitemap.URL{
		{
			Loc:        siteURL("/"),
			LastMod:    &lastMod,
			ChangeFreq: sitemap.Daily,
		},
	}
	for _, p := range StaticPages() {
		urls = append(urls, &sitemap.URL{
			Loc:        siteURL("/" + p),
			LastMod:    &lastMod,
			ChangeFreq: sitemap.Daily,
		})
	}
	for _, j := range job.Active(jobs, now) {
		t := j.UpdatedAt
		urls = append(urls, &sitemap.URL{
			Loc:        siteURL("/job/" + j.ID),
			LastMod:    &t,
			ChangeFreq: sitemap.Weekly,
		})
	}
	return urls
}
