package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const githubAPIBase = "https://api.github.com"

// AppAuth exchanges a GitHub App's private key for a short-lived
// installation token so the GitHub backend can run without a personal
// access token.
type AppAuth struct {
	AppID      string
	PrivateKey string

	// BaseURL overrides the GitHub API endpoint. Empty means api.github.com.
	BaseURL string

	// HTTPClient overrides the client used for the token exchange.
	HTTPClient *http.Client
}

// InstallationToken is a GitHub App installation access token with its expiry.
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

func (a *AppAuth) baseURL() string {
	if a.BaseURL != "" {
		return strings.TrimSuffix(a.BaseURL, "/")
	}
	return githubAPIBase
}

func (a *AppAuth) httpClient() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// GenerateJWT creates the app-level JWT used to look up the installation.
func (a *AppAuth) GenerateJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	appID, err := strconv.ParseInt(a.AppID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid app ID: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(appID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return signedToken, nil
}

// GetInstallationToken resolves the app installation for repo ("owner/name")
// and mints an installation access token for it.
func (a *AppAuth) GetInstallationToken(ctx context.Context, repo string) (*InstallationToken, error) {
	jwtToken, err := a.GenerateJWT()
	if err != nil {
		return nil, err
	}

	installationID, err := a.getInstallationID(ctx, jwtToken, repo)
	if err != nil {
		return nil, err
	}

	return a.getInstallationAccessToken(ctx, jwtToken, installationID)
}

func (a *AppAuth) getInstallationID(ctx context.Context, jwtToken, repo string) (int64, error) {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid repo format: %s (expected owner/repo)", repo)
	}

	url := fmt.Sprintf("%s/repos/%s/%s/installation", a.baseURL(), parts[0], parts[1])
	body, err := a.doAppRequest(ctx, "GET", url, jwtToken, http.StatusOK)
	if err != nil {
		return 0, err
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode installation response: %w", err)
	}

	return result.ID, nil
}

func (a *AppAuth) getInstallationAccessToken(ctx context.Context, jwtToken string, installationID int64) (*InstallationToken, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.baseURL(), installationID)
	body, err := a.doAppRequest(ctx, "POST", url, jwtToken, http.StatusCreated)
	if err != nil {
		return nil, err
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &InstallationToken{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// doAppRequest performs one JWT-authenticated API call and classifies
// failures: rejected credentials become AuthError, network failures and
// server errors become TransientError.
func (a *AppAuth) doAppRequest(ctx context.Context, method, url, jwtToken string, wantStatus int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := a.httpClient().Do(req)
	if err != nil {
		return nil, &TransientError{Op: "github app auth", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == wantStatus:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Backend: "github", Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Op: "github app auth", Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	default:
		return nil, fmt.Errorf("GitHub API error: %d - %s", resp.StatusCode, string(body))
	}
}
