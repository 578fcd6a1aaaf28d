package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	domain "kstu-mobile/internal/domain/session"
)

// AuthClient talks to the credential endpoints. It deliberately bypasses the
// gateway: login needs no bearer, and refresh must never trigger the
// gateway's own 401 handling.
type AuthClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewAuthClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AuthClient {
	return &AuthClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Login exchanges credentials for a token pair.
func (c *AuthClient) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	return c.tokenCall(ctx, "/api/v1/auth/login", domain.LoginRequest{
		Username: username,
		Password: password,
	})
}

// Refresh exchanges a refresh token for a new pair. The response may omit a
// rotated refresh token; callers keep the old one in that case.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	return c.tokenCall(ctx, "/api/v1/auth/token/refresh", domain.RefreshRequest{
		RefreshToken: refreshToken,
	})
}

func (c *AuthClient) tokenCall(ctx context.Context, path string, payload any) (domain.TokenPair, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TokenPair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.TokenPair{}, responseError(resp)
	}

	var pair domain.TokenPair
	if err := decodeData(resp, &pair); err != nil {
		return domain.TokenPair{}, err
	}
	if pair.AccessToken == "" {
		return domain.TokenPair{}, fmt.Errorf("%s: no access token in response", path)
	}
	return pair, nil
}
