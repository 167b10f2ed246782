package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"golang.org/x/oauth2"
)

var (
	// ErrExchange is returned when the authorization code cannot be redeemed.
	ErrExchange = errors.New("oauth code exchange failed")
	// ErrProfile is returned when the user profile cannot be fetched or decoded.
	ErrProfile = errors.New("oauth profile fetch failed")
)

// maxProfileBytes bounds provider profile responses.
const maxProfileBytes = 1 << 20

// Config describes one provider.
type Config struct {
	// Name is the provider id recorded on linked accounts, e.g. "google".
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	// EmailsURL is queried when the profile carries no verified email (GitHub).
	EmailsURL string
	// HTTPClient is used for the exchange and profile calls. Defaults to a 10s client.
	HTTPClient *http.Client
}

type profileDecoder func(ctx context.Context, p *Provider, client *http.Client, body []byte) (goIdentity.OAuthProfile, error)

// Provider runs the authorization-code flow against one OAuth2 provider.
type Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	emailsURL   string
	httpClient  *http.Client
	decode      profileDecoder
}

func newProvider(cfg Config, decode profileDecoder) *Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Provider{
		name: strings.ToLower(strings.TrimSpace(cfg.Name)),
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		emailsURL:   cfg.EmailsURL,
		httpClient:  client,
		decode:      decode,
	}
}

// Name returns the provider id.
func (p *Provider) Name() string {
	return p.name
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange redeems code and returns the provider-verified profile.
func (p *Provider) Exchange(ctx context.Context, code string) (goIdentity.OAuthProfile, error) {
	if strings.TrimSpace(code) == "" {
		return goIdentity.OAuthProfile{}, fmt.Errorf("%w: empty code", ErrExchange)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return goIdentity.OAuthProfile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	client := p.config.Client(ctx, token)
	body, err := getJSON(ctx, client, p.userInfoURL)
	if err != nil {
		return goIdentity.OAuthProfile{}, err
	}
	profile, err := p.decode(ctx, p, client, body)
	if err != nil {
		return goIdentity.OAuthProfile{}, err
	}
	profile.Provider = p.name
	return profile, nil
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfile, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrProfile, url, resp.StatusCode)
	}
	return body, nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProfile, err)
	}
	return nil
}
