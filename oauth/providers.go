package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	goIdentity "github.com/MrEthical07/goIdentity"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

// Google returns a provider for Google sign-in. Empty endpoint fields and
// scopes get Google's defaults.
func Google(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return newProvider(cfg, decodeGoogle)
}

// GitHub returns a provider for GitHub sign-in. GitHub profiles may hide the
// email, in which case the primary verified address is read from EmailsURL.
func GitHub(cfg Config) *Provider {
	if cfg.Name == "" {
		cfg.Name = "github"
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = github.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = githubUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = githubEmailsURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"read:user", "user:email"}
	}
	return newProvider(cfg, decodeGitHub)
}

type googleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func decodeGoogle(_ context.Context, _ *Provider, _ *http.Client, body []byte) (goIdentity.OAuthProfile, error) {
	var raw googleProfile
	if err := decodeJSON(body, &raw); err != nil {
		return goIdentity.OAuthProfile{}, err
	}
	if raw.Sub == "" {
		return goIdentity.OAuthProfile{}, fmt.Errorf("%w: missing subject", ErrProfile)
	}
	profile := goIdentity.OAuthProfile{ProviderAccountID: raw.Sub, Name: raw.Name}
	if raw.EmailVerified {
		profile.Email = raw.Email
	}
	return profile, nil
}

type githubProfile struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func decodeGitHub(ctx context.Context, p *Provider, client *http.Client, body []byte) (goIdentity.OAuthProfile, error) {
	var raw githubProfile
	if err := decodeJSON(body, &raw); err != nil {
		return goIdentity.OAuthProfile{}, err
	}
	if raw.ID == 0 {
		return goIdentity.OAuthProfile{}, fmt.Errorf("%w: missing id", ErrProfile)
	}
	profile := goIdentity.OAuthProfile{
		ProviderAccountID: strconv.FormatInt(raw.ID, 10),
		Name:              raw.Name,
	}
	if profile.Name == "" {
		profile.Name = raw.Login
	}

	// The public profile email is not guaranteed verified, so always ask.
	if p.emailsURL == "" {
		return profile, nil
	}
	emailsBody, err := getJSON(ctx, client, p.emailsURL)
	if err != nil {
		return goIdentity.OAuthProfile{}, err
	}
	var emails []githubEmail
	if err := decodeJSON(emailsBody, &emails); err != nil {
		return goIdentity.OAuthProfile{}, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			profile.Email = e.Email
			break
		}
	}
	return profile, nil
}
