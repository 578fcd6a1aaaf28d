package devserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kstu-mobile/internal/config"
	attdomain "kstu-mobile/internal/domain/attendance"
	sessdomain "kstu-mobile/internal/domain/session"
	"kstu-mobile/internal/token"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AppConfig{
		DevAddr:       ":0",
		DevJWTSecret:  "test-secret",
		DevAccessTTL:  time.Minute,
		DevRefreshTTL: time.Hour,
	}
	srv := httptest.NewServer(NewServer(cfg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srv *httptest.Server, username, password string) (sessdomain.TokenPair, int) {
	t.Helper()
	body, _ := json.Marshal(sessdomain.LoginRequest{Username: username, Password: password})
	resp, err := http.Post(srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	var env struct {
		Data sessdomain.TokenPair `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	return env.Data, resp.StatusCode
}

func submit(t *testing.T, srv *httptest.Server, access, auditorium, geo string, image []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("auditorium", auditorium)
	w.WriteField("geo", geo)
	if image != nil {
		part, _ := w.CreateFormFile("image", "photo.jpg")
		part.Write(image)
	}
	w.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/attendance", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	return resp
}

func lastRecord(t *testing.T, srv *httptest.Server, access string) *attdomain.Record {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/attendance/last", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("last record request: %v", err)
	}
	defer resp.Body.Close()

	var env struct {
		Data *attdomain.Record `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	return env.Data
}

func TestLoginIssuesDecodableTokens(t *testing.T) {
	srv := setupServer(t)

	pair, status := login(t, srv, "student", "password")
	if status != http.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("incomplete token pair")
	}

	user := token.Decode(pair.AccessToken)
	if user == nil {
		t.Fatal("issued access token is not decodable by the client codec")
	}
	if user.ID != 101 || user.Role != sessdomain.RoleStudent {
		t.Errorf("decoded user = %+v", user)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := setupServer(t)

	if _, status := login(t, srv, "student", "nope"); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if _, status := login(t, srv, "ghost", "password"); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/attendance/last")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := setupServer(t)
	pair, _ := login(t, srv, "teacher", "password")

	body, _ := json.Marshal(sessdomain.RefreshRequest{RefreshToken: pair.RefreshToken})
	resp, err := http.Post(srv.URL+"/api/v1/auth/token/refresh", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}

	var env struct {
		Data sessdomain.TokenPair `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	if user := token.Decode(env.Data.AccessToken); user == nil || user.Role != sessdomain.RoleTeacher {
		t.Errorf("refreshed token decodes to %+v", user)
	}

	// An access token is not accepted as a refresh token.
	body, _ = json.Marshal(sessdomain.RefreshRequest{RefreshToken: pair.AccessToken})
	resp2, err := http.Post(srv.URL+"/api/v1/auth/token/refresh", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh with access token status = %d, want 401", resp2.StatusCode)
	}
}

func TestCheckInLifecycle(t *testing.T) {
	srv := setupServer(t)
	pair, _ := login(t, srv, "employee", "password")

	if rec := lastRecord(t, srv, pair.AccessToken); rec != nil {
		t.Fatalf("fresh account has record %+v", rec)
	}

	// Start.
	resp := submit(t, srv, pair.AccessToken, "Г/1/101", "42.8440547, 74.5865404", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	rec := lastRecord(t, srv, pair.AccessToken)
	if rec == nil || rec.Status != attdomain.StatusStarted {
		t.Fatalf("after start record = %+v", rec)
	}
	if rec.Auditorium != "Г/1/101" || rec.StartGeo != "42.8440547, 74.5865404" {
		t.Errorf("record = %+v", rec)
	}

	// Finish: same endpoint, open record present, photo attached.
	resp = submit(t, srv, pair.AccessToken, "Г/1/101", "42.8440600, 74.5865500", []byte("jpeg"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finish status = %d", resp.StatusCode)
	}

	rec = lastRecord(t, srv, pair.AccessToken)
	if rec == nil || rec.Status != attdomain.StatusFinished {
		t.Fatalf("after finish record = %+v", rec)
	}
	if rec.FinishGeo != "42.8440600, 74.5865500" {
		t.Errorf("finish geo = %q", rec.FinishGeo)
	}
	if rec.FinishPhoto == "" {
		t.Error("finish photo reference missing")
	}
	if rec.WorkingTime == "" {
		t.Error("working time missing")
	}
}
