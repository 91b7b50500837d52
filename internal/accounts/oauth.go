package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// TokenExchange is the result of an OAuth code exchange or refresh.
type TokenExchange struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int
}

// ExpiresAt converts ExpiresIn to an absolute timestamp.
func (t TokenExchange) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// GoogleOAuth performs the code-exchange and refresh flows against
// Google's token endpoint.
type GoogleOAuth struct {
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	userInfoURL  string
	httpClient   *http.Client
}

type OAuthOption func(*GoogleOAuth)

// WithEndpoints overrides the Google endpoints, for tests.
func WithEndpoints(tokenURL, userInfoURL string) OAuthOption {
	return func(g *GoogleOAuth) {
		g.tokenURL = tokenURL
		g.userInfoURL = userInfoURL
	}
}

func WithOAuthHTTPClient(hc *http.Client) OAuthOption {
	return func(g *GoogleOAuth) { g.httpClient = hc }
}

func NewGoogleOAuth(clientID, clientSecret, redirectURI string, opts ...OAuthOption) *GoogleOAuth {
	g := &GoogleOAuth{
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		redirectURI:  strings.TrimSpace(redirectURI),
		tokenURL:     googleTokenURL,
		userInfoURL:  googleUserInfoURL,
		httpClient:   &http.Client{Timeout: 8 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GoogleOAuth) Configured() bool {
	return g.clientID != "" && g.clientSecret != "" && g.redirectURI != ""
}

// ExchangeCode trades an authorization code for a token pair.
func (g *GoogleOAuth) ExchangeCode(ctx context.Context, code, codeVerifier string) (TokenExchange, error) {
	if !g.Configured() {
		return TokenExchange{}, fmt.Errorf("accounts: google oauth is not configured")
	}
	form := url.Values{
		"code":          {strings.TrimSpace(code)},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"redirect_uri":  {g.redirectURI},
		"grant_type":    {"authorization_code"},
	}
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	return g.tokenRequest(ctx, form)
}

// Refresh trades a refresh token for a fresh access token.
func (g *GoogleOAuth) Refresh(ctx context.Context, refreshToken string) (TokenExchange, error) {
	if !g.Configured() {
		return TokenExchange{}, fmt.Errorf("accounts: google oauth is not configured")
	}
	form := url.Values{
		"refresh_token": {strings.TrimSpace(refreshToken)},
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"grant_type":    {"refresh_token"},
	}
	return g.tokenRequest(ctx, form)
}

// UserInfo fetches the account's OpenID profile.
func (g *GoogleOAuth) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("accounts: userinfo: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("accounts: userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accounts: userinfo returned %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("accounts: userinfo: %w", err)
	}
	return out, nil
}

func (g *GoogleOAuth) tokenRequest(ctx context.Context, form url.Values) (TokenExchange, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenExchange{}, fmt.Errorf("accounts: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return TokenExchange{}, fmt.Errorf("accounts: token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenExchange{}, fmt.Errorf("accounts: token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return TokenExchange{}, fmt.Errorf("accounts: google token endpoint returned %d: %s",
			resp.StatusCode, RedactSensitiveText(googleErrorDetail(body)))
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TokenExchange{}, fmt.Errorf("accounts: google token payload: %w", err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return TokenExchange{}, fmt.Errorf("accounts: google token response missing access_token")
	}
	return TokenExchange{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    parsed.TokenType,
		Scope:        parsed.Scope,
		ExpiresIn:    parsed.ExpiresIn,
	}, nil
}

func googleErrorDetail(body []byte) string {
	var parsed struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		if parsed.ErrorDescription != "" {
			return parsed.Error + ": " + parsed.ErrorDescription
		}
		return parsed.Error
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 300 {
		detail = detail[:300]
	}
	if detail == "" {
		detail = "request failed"
	}
	return detail
}
