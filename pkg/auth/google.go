package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauthapi "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrNoGoogleCredentials is returned when the OAuth client is not configured.
var ErrNoGoogleCredentials = errors.New("auth: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")

// GoogleConfig configures Google sign-in.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint and APIEndpoint override Google's defaults.
	Endpoint    *oauth2.Endpoint
	APIEndpoint string
	HTTPClient  *http.Client
}

// Google resolves an authorization code to the user's verified identity.
type Google struct {
	oauth       *oauth2.Config
	apiEndpoint string
	httpClient  *http.Client
}

// NewGoogle creates a Google sign-in helper.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNoGoogleCredentials
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8501/auth/google/callback"
	}
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				oauthapi.UserinfoProfileScope,
				oauthapi.UserinfoEmailScope,
				"openid",
			},
			Endpoint: endpoint,
		},
		apiEndpoint: cfg.APIEndpoint,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// AuthURL returns the consent URL carrying state.
func (g *Google) AuthURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.ApprovalForce)
}

// Identify exchanges code and fetches the user's profile.
func (g *Google) Identify(ctx context.Context, code string) (Identity, error) {
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: exchange code: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(g.oauth.Client(ctx, tok))}
	if g.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.apiEndpoint))
	}
	svc, err := oauthapi.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("auth: fetch userinfo: %w", err)
	}
	return Identity{Email: info.Email, Name: info.Name}, nil
}
