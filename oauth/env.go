package oauth

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type providerEnv struct {
	GoogleClientID     string   `env:"GOIDENTITY_OAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string   `env:"GOIDENTITY_OAUTH_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string   `env:"GOIDENTITY_OAUTH_GOOGLE_REDIRECT_URL"`
	GoogleScopes       []string `env:"GOIDENTITY_OAUTH_GOOGLE_SCOPES" envSeparator:","`
	GitHubClientID     string   `env:"GOIDENTITY_OAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret string   `env:"GOIDENTITY_OAUTH_GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string   `env:"GOIDENTITY_OAUTH_GITHUB_REDIRECT_URL"`
	GitHubScopes       []string `env:"GOIDENTITY_OAUTH_GITHUB_SCOPES" envSeparator:","`
}

// LoadProvidersFromEnv builds every provider whose client id, secret and
// redirect URL are all set. The map is keyed by provider name and may be empty.
func LoadProvidersFromEnv() (map[string]*Provider, error) {
	var raw providerEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("oauth env: %w", err)
	}

	providers := make(map[string]*Provider)
	if complete(raw.GoogleClientID, raw.GoogleClientSecret, raw.GoogleRedirectURL) {
		p := Google(Config{
			ClientID:     raw.GoogleClientID,
			ClientSecret: raw.GoogleClientSecret,
			RedirectURL:  raw.GoogleRedirectURL,
			Scopes:       trimCSV(raw.GoogleScopes),
		})
		providers[p.Name()] = p
	}
	if complete(raw.GitHubClientID, raw.GitHubClientSecret, raw.GitHubRedirectURL) {
		p := GitHub(Config{
			ClientID:     raw.GitHubClientID,
			ClientSecret: raw.GitHubClientSecret,
			RedirectURL:  raw.GitHubRedirectURL,
			Scopes:       trimCSV(raw.GitHubScopes),
		})
		providers[p.Name()] = p
	}
	return providers, nil
}

func complete(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func trimCSV(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
