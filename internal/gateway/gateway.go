// Package gateway is the single outbound HTTP path of the client. It injects
// the bearer token, read fresh from the session on every send, and owns the
// only automatic retry in the system: one refresh-and-replay on a 401.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "kstu-mobile/internal/domain/session"
	xerrors "kstu-mobile/internal/pkg/errors"
)

// Session is the slice of the session controller the gateway needs.
type Session interface {
	AccessToken() string
	RefreshToken(ctx context.Context) string
	SetTokens(ctx context.Context, pair domain.TokenPair)
	Logout(ctx context.Context)
}

// Refresher exchanges a refresh token for a new pair. The gateway calls it
// directly rather than through itself, so a failing refresh can never
// re-enter the 401 handling.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
}

type Gateway struct {
	session   Session
	refresher Refresher
	logger    *zap.Logger

	client *http.Client
	upload *http.Client
}

func New(session Session, refresher Refresher, logger *zap.Logger, requestTimeout, uploadTimeout time.Duration) *Gateway {
	return &Gateway{
		session:   session,
		refresher: refresher,
		logger:    logger,
		client:    &http.Client{Timeout: requestTimeout},
		upload:    &http.Client{Timeout: uploadTimeout},
	}
}

// Do sends a request on the default-timeout client.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	return g.send(g.client, req)
}

// DoUpload sends a request on the long-timeout client. Used for multipart
// submissions carrying images.
func (g *Gateway) DoUpload(req *http.Request) (*http.Response, error) {
	return g.send(g.upload, req)
}

func (g *Gateway) send(client *http.Client, req *http.Request) (*http.Response, error) {
	reqID := ulid.Make().String()
	req.Header.Set("X-Request-ID", reqID)
	g.authorize(req)

	g.logger.Debug("outbound request",
		zap.String("request_id", reqID),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	// One refresh-and-replay, structurally bounded: the replay below goes
	// straight to the client, never back through send.
	ctx := req.Context()

	refresh := g.session.RefreshToken(ctx)
	if refresh == "" {
		g.logger.Info("401 with no refresh token, ending session", zap.String("request_id", reqID))
		g.session.Logout(ctx)
		return nil, fmt.Errorf("request unauthorized: %w", xerrors.ErrSessionExpired)
	}

	pair, err := g.refresher.Refresh(ctx, refresh)
	if err != nil {
		g.logger.Info("token refresh failed, ending session",
			zap.String("request_id", reqID), zap.Error(err))
		g.session.Logout(ctx)
		return nil, fmt.Errorf("token refresh: %s: %w",
			xerrors.MessageOrDefault(err, "refresh failed"), xerrors.ErrSessionExpired)
	}
	g.session.SetTokens(ctx, pair)

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, fmt.Errorf("replay request: %w", err)
	}
	retry.Header.Set("X-Request-ID", reqID)
	g.authorize(retry)

	g.logger.Debug("replaying request after refresh", zap.String("request_id", reqID))

	resp, err = client.Do(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Fresh token rejected too; the session is gone.
		resp.Body.Close()
		g.session.Logout(ctx)
		return nil, fmt.Errorf("request unauthorized after refresh: %w", xerrors.ErrSessionExpired)
	}
	return resp, nil
}

// authorize attaches the bearer token if the session holds one. Requests
// without a token proceed unauthenticated.
func (g *Gateway) authorize(req *http.Request) {
	if token := g.session.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
