package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Port              string
	Env               string // either prod or dev, will disable https and secure cookies in dev
	JobsFile          string // path of the JSON document holding every job record
	UploadsDir        string // directory served under /uploads/ for company logos
	SessionKey        []byte
	JwtSigningKey     []byte
	AdminEmail        string
	AdminPasswordHash []byte // bcrypt hash of the admin password
	MachineToken      string // shared secret for task endpoints
	SentryDSN         string
	SiteName          string
	SiteHost          string
	URLProtocol       string
	JobsPerPage       int           // configures how many jobs are shown per admin page
	JobsCacheTTL      time.Duration // life window of the cached job collection
	MaxLogoSize       int64         // upload limit for a single logo in bytes
}

// LoadConfig reads the configuration from the environment. A .env file in
// the working directory is loaded first when present.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrap(err, "unable to load .env file")
	}
	port := os.Getenv("PORT")
	if port == "" {
		return Config{}, fmt.Errorf("PORT cannot be empty")
	}
	env := strings.ToLower(os.Getenv("ENV"))
	if env == "" {
		return Config{}, fmt.Errorf("ENV cannot be empty")
	}
	jobsFile := os.Getenv("JOBS_FILE")
	if jobsFile == "" {
		jobsFile = "data/jobs.json"
	}
	uploadsDir := os.Getenv("UPLOADS_DIR")
	if uploadsDir == "" {
		uploadsDir = "public/uploads"
	}
	sessionKeyString := os.Getenv("SESSION_KEY")
	if sessionKeyString == "" {
		return Config{}, fmt.Errorf("SESSION_KEY cannot be empty")
	}
	sessionKeyBytes, err := base64.StdEncoding.DecodeString(sessionKeyString)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to decode session key to bytes")
	}
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		return Config{}, fmt.Errorf("JWT_SIGNING_KEY cannot be empty")
	}
	jwtSigningKeyBytes, err := base64.StdEncoding.DecodeString(jwtSigningKey)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to decode jwt signing key to bytes")
	}
	adminEmail := os.Getenv("ADMIN_EMAIL")
	if adminEmail == "" {
		return Config{}, fmt.Errorf("ADMIN_EMAIL cannot be empty")
	}
	adminPasswordHash := os.Getenv("ADMIN_PASSWORD_HASH")
	if adminPasswordHash == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD_HASH cannot be empty")
	}
	machineToken := os.Getenv("MACHINE_TOKEN")
	if machineToken == "" {
		return Config{}, fmt.Errorf("MACHINE_TOKEN cannot be empty")
	}
	siteName := os.Getenv("SITE_NAME")
	if siteName == "" {
		siteName = "RemoteTrail"
	}
	siteHost := os.Getenv("SITE_HOST")
	if siteHost == "" {
		return Config{}, fmt.Errorf("SITE_HOST cannot be empty")
	}
	jobsCacheTTL := 10 * time.Minute
	if jobsCacheMinutesStr := os.Getenv("JOBS_CACHE_MINUTES"); jobsCacheMinutesStr != "" {
		jobsCacheMinutes, err := strconv.Atoi(jobsCacheMinutesStr)
		if err != nil || jobsCacheMinutes < 1 {
			return Config{}, fmt.Errorf("could not convert JOBS_CACHE_MINUTES to a positive int: %q", jobsCacheMinutesStr)
		}
		jobsCacheTTL = time.Duration(jobsCacheMinutes) * time.Minute
	}
	urlProtocol := "http://"
	if !strings.EqualFold(env, "dev") {
		urlProtocol = "https://"
	}

	return Config{
		Port:              port,
		Env:               env,
		JobsFile:          jobsFile,
		UploadsDir:        uploadsDir,
		SessionKey:        sessionKeyBytes,
		JwtSigningKey:     jwtSigningKeyBytes,
		AdminEmail:        adminEmail,
		AdminPasswordHash: []byte(adminPasswordHash),
		MachineToken:      machineToken,
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		SiteName:          siteName,
		SiteHost:          siteHost,
		URLProtocol:       urlProtocol,
		JobsPerPage:       10,
		JobsCacheTTL:      jobsCacheTTL,
		MaxLogoSize:       5 * 1024 * 1024,
	}, nil
}

// SiteURL returns the absolute URL for a root-relative path.
func (c Config) SiteURL(path string) string {
	return c.URLProtocol + c.SiteHost + path
}
