// Package session owns the authentication state of the client: the token
// pair, the user decoded from the access token, and the device-local unlock
// credential (PIN hash + biometric flag).
package session

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	domain "kstu-mobile/internal/domain/session"
	xerrors "kstu-mobile/internal/pkg/errors"
	"kstu-mobile/internal/store"
	"kstu-mobile/internal/token"
)

// AuthAPI is the remote credential exchange the controller depends on.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
}

type Controller struct {
	vault  *store.Vault
	auth   AuthAPI
	logger *zap.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	user         *domain.User
	initialized  bool
	lastError    string
}

func NewController(vault *store.Vault, auth AuthAPI, logger *zap.Logger) *Controller {
	return &Controller{
		vault:  vault,
		auth:   auth,
		logger: logger,
	}
}

// Initialize loads the persisted token pair and derives the user from the
// access token. It completes even when the vault misbehaves: storage errors
// degrade to "unauthenticated" and are logged only. Safe to call more than
// once; after the first completion it is a no-op.
func (c *Controller) Initialize(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return
	}

	access, ok, err := c.vault.Get(ctx, store.KeyAccessToken)
	if err != nil {
		c.logger.Warn("vault read failed, treating access token as absent", zap.Error(err))
	} else if ok {
		c.accessToken = access
	}

	refresh, ok, err := c.vault.Get(ctx, store.KeyRefreshToken)
	if err != nil {
		c.logger.Warn("vault read failed, treating refresh token as absent", zap.Error(err))
	} else if ok {
		c.refreshToken = refresh
	}

	c.user = token.Decode(c.accessToken)
	if c.accessToken != "" && c.user == nil {
		// Held token is garbage; drop it so state degrades to Locked or
		// Unauthenticated instead of a half-authenticated limbo.
		c.accessToken = ""
	}

	c.initialized = true
}

// Login exchanges credentials for a token pair and applies it. On failure the
// server's message is retained for display and ErrAuthenticationFailed is
// returned so the caller can keep the user on the form.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	pair, err := c.auth.Login(ctx, username, password)
	if err != nil {
		msg := xerrors.MessageOrDefault(err, "authentication failed")
		c.mu.Lock()
		c.lastError = msg
		c.mu.Unlock()
		return xerrors.Wrap(xerrors.ErrAuthenticationFailed, msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = ""
	c.applyTokens(ctx, pair)
	return nil
}

// SetTokens applies a token pair. The refresh token is updated only when the
// pair carries one, so refresh responses that omit rotation keep the stored
// refresh token intact. The user is recomputed last; no reader can observe a
// token/user mismatch after this returns.
func (c *Controller) SetTokens(ctx context.Context, pair domain.TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyTokens(ctx, pair)
}

// applyTokens assumes c.mu is held.
func (c *Controller) applyTokens(ctx context.Context, pair domain.TokenPair) {
	c.accessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		c.refreshToken = pair.RefreshToken
		if err := c.vault.SetPair(ctx,
			store.KeyAccessToken, pair.AccessToken,
			store.KeyRefreshToken, pair.RefreshToken); err != nil {
			c.logger.Warn("vault write failed for token pair", zap.Error(err))
		}
	} else {
		if err := c.vault.Set(ctx, store.KeyAccessToken, pair.AccessToken); err != nil {
			c.logger.Warn("vault write failed for access token", zap.Error(err))
		}
	}
	c.user = token.Decode(c.accessToken)
}

// RefreshAccessToken mints a new access token from the stored refresh token.
// Any failure is fatal for the session: the controller logs out and the
// caller must route the user back to login.
func (c *Controller) RefreshAccessToken(ctx context.Context) error {
	refresh := c.RefreshToken(ctx)
	if refresh == "" {
		c.Logout(ctx)
		return xerrors.ErrSessionExpired
	}

	pair, err := c.auth.Refresh(ctx, refresh)
	if err != nil {
		c.Logout(ctx)
		return xerrors.Wrap(xerrors.ErrSessionExpired, xerrors.MessageOrDefault(err, "refresh failed"))
	}

	c.SetTokens(ctx, pair)
	return nil
}

// Logout clears the token pair and the user, in memory and in the vault. The
// PIN hash and biometric flag are device-scoped and survive logout.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = ""
	c.refreshToken = ""
	c.user = nil
	c.lastError = ""

	if err := c.vault.Remove(ctx, store.KeyAccessToken, store.KeyRefreshToken); err != nil {
		c.logger.Warn("vault remove failed on logout", zap.Error(err))
	}
}

// State derives the top-level auth state from held tokens.
func (c *Controller) State() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.initialized:
		return domain.Uninitialized
	case c.accessToken != "" && c.user != nil:
		return domain.Authenticated
	case c.refreshToken != "":
		return domain.Locked
	default:
		return domain.Unauthenticated
	}
}

// AccessToken returns the current access token, empty when unauthenticated
// or locked. The gateway reads this fresh on every outbound request.
func (c *Controller) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// RefreshToken returns the refresh token, falling back to a direct vault
// read when the in-memory copy is empty.
func (c *Controller) RefreshToken(ctx context.Context) string {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh != "" {
		return refresh
	}

	stored, ok, err := c.vault.Get(ctx, store.KeyRefreshToken)
	if err != nil || !ok {
		return ""
	}
	return stored
}

// User returns the identity decoded from the current access token, nil when
// there is none.
func (c *Controller) User() *domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Controller) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// LastError is the user-displayable message of the most recent failed login.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ---- Local unlock (PIN / biometric) ----

// SetPinCode hashes and stores the device PIN. Verification never leaves the
// device.
func (c *Controller) SetPinCode(ctx context.Context, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return xerrors.Wrap(err, "hash pin")
	}
	if err := c.vault.Set(ctx, store.KeyPinHash, string(hash)); err != nil {
		return xerrors.Wrap(err, "store pin")
	}
	return nil
}

// VerifyPinCode checks a PIN against the stored hash. A vault error or a
// missing hash verifies as false.
func (c *Controller) VerifyPinCode(ctx context.Context, pin string) bool {
	hash, ok, err := c.vault.Get(ctx, store.KeyPinHash)
	if err != nil || !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// HasPin reports whether a PIN was ever created on this device. A device
// holding a refresh token but no PIN gets "create PIN" as its next unlock
// step.
func (c *Controller) HasPin(ctx context.Context) bool {
	_, ok, err := c.vault.Get(ctx, store.KeyPinHash)
	return err == nil && ok
}

func (c *Controller) SetBiometricEnabled(ctx context.Context, enabled bool) error {
	if err := c.vault.Set(ctx, store.KeyBiometricEnabled, strconv.FormatBool(enabled)); err != nil {
		return xerrors.Wrap(err, "store biometric flag")
	}
	return nil
}

func (c *Controller) BiometricEnabled(ctx context.Context) bool {
	v, ok, err := c.vault.Get(ctx, store.KeyBiometricEnabled)
	if err != nil || !ok {
		return false
	}
	enabled, _ := strconv.ParseBool(v)
	return enabled
}
