package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	domain "kstu-mobile/internal/domain/session"
	xerrors "kstu-mobile/internal/pkg/errors"
	"kstu-mobile/internal/store"
)

type fakeAuth struct {
	loginPair    domain.TokenPair
	loginErr     error
	refreshPair  domain.TokenPair
	refreshErr   error
	loginCalls   int
	refreshCalls int
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (domain.TokenPair, error) {
	f.loginCalls++
	return f.loginPair, f.loginErr
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	f.refreshCalls++
	return f.refreshPair, f.refreshErr
}

func accessToken(t *testing.T, id int64, typeCode string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user": map[string]any{"id": id, "user_type": typeCode},
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func setup(t *testing.T, auth AuthAPI) (*Controller, *store.Vault) {
	t.Helper()
	vault, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	t.Cleanup(func() { vault.Close() })
	return NewController(vault, auth, zap.NewNop()), vault
}

// checkCoherence asserts the invariant that user is non-nil exactly when a
// decodable access token is held.
func checkCoherence(t *testing.T, c *Controller) {
	t.Helper()
	hasToken := c.AccessToken() != ""
	hasUser := c.User() != nil
	if hasToken != hasUser {
		t.Fatalf("coherence violated: token=%v user=%v", hasToken, hasUser)
	}
}

func TestInitializeEmptyVault(t *testing.T) {
	c, _ := setup(t, &fakeAuth{})
	ctx := context.Background()

	if c.State() != domain.Uninitialized {
		t.Fatalf("state before init = %v", c.State())
	}

	c.Initialize(ctx)

	if !c.IsInitialized() {
		t.Error("not initialized after Initialize")
	}
	if c.State() != domain.Unauthenticated {
		t.Errorf("state = %v, want unauthenticated", c.State())
	}
	checkCoherence(t, c)
}

func TestInitializeRefreshOnlyIsLocked(t *testing.T) {
	c, vault := setup(t, &fakeAuth{})
	ctx := context.Background()

	vault.Set(ctx, store.KeyRefreshToken, "refresh-1")
	c.Initialize(ctx)

	if c.State() != domain.Locked {
		t.Errorf("state = %v, want locked", c.State())
	}
	checkCoherence(t, c)
}

func TestInitializeBothTokens(t *testing.T) {
	c, vault := setup(t, &fakeAuth{})
	ctx := context.Background()

	vault.SetPair(ctx, store.KeyAccessToken, accessToken(t, 42, "S"),
		store.KeyRefreshToken, "refresh-1")
	c.Initialize(ctx)

	if c.State() != domain.Authenticated {
		t.Fatalf("state = %v, want authenticated", c.State())
	}
	user := c.User()
	if user == nil || user.ID != 42 || user.Role != domain.RoleStudent {
		t.Errorf("user = %+v", user)
	}
	checkCoherence(t, c)
}

func TestInitializeUndecodableAccessTokenDegradesToLocked(t *testing.T) {
	c, vault := setup(t, &fakeAuth{})
	ctx := context.Background()

	vault.SetPair(ctx, store.KeyAccessToken, "garbage",
		store.KeyRefreshToken, "refresh-1")
	c.Initialize(ctx)

	if c.State() != domain.Locked {
		t.Errorf("state = %v, want locked", c.State())
	}
	checkCoherence(t, c)
}

func TestInitializeIdempotent(t *testing.T) {
	c, vault := setup(t, &fakeAuth{})
	ctx := context.Background()

	c.Initialize(ctx)
	// A token written after the first init must not resurrect on re-init.
	vault.Set(ctx, store.KeyAccessToken, accessToken(t, 1, "S"))
	c.Initialize(ctx)

	if c.State() != domain.Unauthenticated {
		t.Errorf("state = %v, want unauthenticated (second init must no-op)", c.State())
	}
}

func TestLoginSuccessPersistsPair(t *testing.T) {
	access := accessToken(t, 7, "T")
	auth := &fakeAuth{loginPair: domain.TokenPair{AccessToken: access, RefreshToken: "refresh-1"}}
	c, vault := setup(t, auth)
	ctx := context.Background()
	c.Initialize(ctx)

	if err := c.Login(ctx, "teacher", "password"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if c.State() != domain.Authenticated {
		t.Errorf("state = %v", c.State())
	}
	if user := c.User(); user == nil || user.Role != domain.RoleTeacher {
		t.Errorf("user = %+v", user)
	}
	if got, _, _ := vault.Get(ctx, store.KeyAccessToken); got != access {
		t.Error("access token not persisted")
	}
	if got, _, _ := vault.Get(ctx, store.KeyRefreshToken); got != "refresh-1" {
		t.Error("refresh token not persisted")
	}
	checkCoherence(t, c)
}

func TestLoginFailure(t *testing.T) {
	auth := &fakeAuth{loginErr: errors.New("неверный логин или пароль")}
	c, _ := setup(t, auth)
	ctx := context.Background()
	c.Initialize(ctx)

	err := c.Login(ctx, "student", "wrong")
	if !errors.Is(err, xerrors.ErrAuthenticationFailed) {
		t.Fatalf("err = %v, want ErrAuthenticationFailed", err)
	}
	if c.LastError() != "неверный логин или пароль" {
		t.Errorf("last error = %q", c.LastError())
	}
	if c.State() != domain.Unauthenticated {
		t.Errorf("state = %v", c.State())
	}
	checkCoherence(t, c)
}

func TestSetTokensKeepsRefreshWhenOmitted(t *testing.T) {
	c, vault := setup(t, &fakeAuth{})
	ctx := context.Background()
	c.Initialize(ctx)

	first := accessToken(t, 1, "S")
	second := accessToken(t, 1, "S")

	c.SetTokens(ctx, domain.TokenPair{AccessToken: first, RefreshToken: "refresh-1"})
	c.SetTokens(ctx, domain.TokenPair{AccessToken: second})

	if got := c.RefreshToken(ctx); got != "refresh-1" {
		t.Errorf("refresh token = %q, want refresh-1", got)
	}
	if got, _, _ := vault.Get(ctx, store.KeyRefreshToken); got != "refresh-1" {
		t.Errorf("stored refresh token = %q, want refresh-1", got)
	}
	if c.AccessToken() != second {
		t.Error("access token not replaced")
	}
	checkCoherence(t, c)
}

func TestSetTokensOverwritesBothWhenSupplied(t *testing.T) {
	c, vault := setup(t, &fakeAuth{})
	ctx := context.Background()
	c.Initialize(ctx)

	c.SetTokens(ctx, domain.TokenPair{AccessToken: accessToken(t, 1, "S"), RefreshToken: "refresh-1"})
	next := accessToken(t, 1, "S")
	c.SetTokens(ctx, domain.TokenPair{AccessToken: next, RefreshToken: "refresh-2"})

	if got := c.RefreshToken(ctx); got != "refresh-2" {
		t.Errorf("refresh token = %q, want refresh-2", got)
	}
	if got, _, _ := vault.Get(ctx, store.KeyRefreshToken); got != "refresh-2" {
		t.Errorf("stored refresh token = %q", got)
	}
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	auth := &fakeAuth{refreshErr: errors.New("token expired")}
	c, vault := setup(t, auth)
	ctx := context.Background()

	vault.Set(ctx, store.KeyRefreshToken, "refresh-1")
	c.Initialize(ctx)
	c.SetPinCode(ctx, "1234")

	err := c.RefreshAccessToken(ctx)
	if !errors.Is(err, xerrors.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if c.State() != domain.Unauthenticated {
		t.Errorf("state = %v, want unauthenticated", c.State())
	}
	if _, ok, _ := vault.Get(ctx, store.KeyRefreshToken); ok {
		t.Error("refresh token survived forced logout")
	}
	// Device-scoped unlock state survives.
	if !c.HasPin(ctx) {
		t.Error("pin lost on forced logout")
	}
	checkCoherence(t, c)
}

func TestRefreshWithoutTokenFails(t *testing.T) {
	auth := &fakeAuth{}
	c, _ := setup(t, auth)
	ctx := context.Background()
	c.Initialize(ctx)

	if err := c.RefreshAccessToken(ctx); !errors.Is(err, xerrors.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if auth.refreshCalls != 0 {
		t.Errorf("refresh endpoint called %d times without a token", auth.refreshCalls)
	}
}

func TestUnlockRoundTrip(t *testing.T) {
	access := accessToken(t, 9, "")
	auth := &fakeAuth{refreshPair: domain.TokenPair{AccessToken: access, RefreshToken: "refresh-2"}}
	c, vault := setup(t, auth)
	ctx := context.Background()

	vault.Set(ctx, store.KeyRefreshToken, "refresh-1")
	c.Initialize(ctx)

	if c.State() != domain.Locked {
		t.Fatalf("state = %v, want locked", c.State())
	}
	if c.HasPin(ctx) {
		t.Fatal("fresh device should have no pin")
	}

	// PIN creation happens lazily at first unlock.
	if err := c.SetPinCode(ctx, "4321"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if c.VerifyPinCode(ctx, "1111") {
		t.Error("wrong pin verified")
	}
	if !c.VerifyPinCode(ctx, "4321") {
		t.Fatal("correct pin rejected")
	}

	if err := c.RefreshAccessToken(ctx); err != nil {
		t.Fatalf("refresh after unlock: %v", err)
	}
	if c.State() != domain.Authenticated {
		t.Errorf("state = %v, want authenticated", c.State())
	}
	if user := c.User(); user == nil || user.Role != domain.RoleEmployee {
		t.Errorf("user = %+v, want employee", user)
	}
	checkCoherence(t, c)
}

func TestLogoutClearsSessionKeepsDeviceState(t *testing.T) {
	auth := &fakeAuth{loginPair: domain.TokenPair{
		AccessToken: accessToken(t, 5, "S"), RefreshToken: "refresh-1"}}
	c, vault := setup(t, auth)
	ctx := context.Background()
	c.Initialize(ctx)

	c.Login(ctx, "student", "password")
	c.SetPinCode(ctx, "1234")
	c.SetBiometricEnabled(ctx, true)

	c.Logout(ctx)

	if c.State() != domain.Unauthenticated {
		t.Errorf("state = %v", c.State())
	}
	if c.User() != nil {
		t.Error("user survived logout")
	}
	if _, ok, _ := vault.Get(ctx, store.KeyAccessToken); ok {
		t.Error("access token survived logout")
	}
	if !c.HasPin(ctx) {
		t.Error("pin should survive logout")
	}
	if !c.BiometricEnabled(ctx) {
		t.Error("biometric flag should survive logout")
	}
	checkCoherence(t, c)
}
