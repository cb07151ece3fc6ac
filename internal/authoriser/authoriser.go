package authoriser

import (
	"crypto/subtle"
	"strings"

	"github.com/remotetrail/job-board/internal/config"
	"golang.org/x/crypto/bcrypt"
)

type Authoriser struct {
	AdminEmail        string
	AdminPasswordHash []byte
}

type AuthRq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRes struct {
	Email   string
	IsAdmin bool
	Valid   bool
}

func NewAuthoriser(cfg config.Config) Authoriser {
	return Authoriser{
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
	}
}

// ValidAuthRequest checks the credentials against the configured admin. The
// password hash is compared even when the email does not match.
func (a Authoriser) ValidAuthRequest(authRq *AuthRq) AuthRes {
	email := strings.ToLower(strings.TrimSpace(authRq.Email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(strings.ToLower(a.AdminEmail))) == 1
	passwordOK := bcrypt.CompareHashAndPassword(a.AdminPasswordHash, []byte(authRq.Password)) == nil
	if emailOK && passwordOK {
		return AuthRes{Email: a.AdminEmail, Valid: true, IsAdmin: true}
	}
	return AuthRes{}
}
