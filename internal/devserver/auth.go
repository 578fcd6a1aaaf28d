package devserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	sessdomain "kstu-mobile/internal/domain/session"
	"kstu-mobile/internal/pkg/response"
)

// Account is a seeded dev identity.
type Account struct {
	Username     string
	PasswordHash []byte
	User         sessdomain.User
	Department   string
	Position     string
}

func (s *Server) seedAccounts() {
	seed := []struct {
		username, password string
		user               sessdomain.User
		department         string
		position           string
	}{
		{
			username: "student", password: "password",
			user: sessdomain.User{
				ID: 101, FirstName: "Айбек", LastName: "Асанов", Patronymic: "Таалайбекович",
				Email: "a.asanov@kstu.kg", Phone: "+996700000001",
				Gender: "m", BirthDate: "2004-03-12", TypeCode: "S",
			},
			department: "ФИТ", position: "студент",
		},
		{
			username: "teacher", password: "password",
			user: sessdomain.User{
				ID: 102, FirstName: "Гульнара", LastName: "Исаева", Patronymic: "Бакытовна",
				Email: "g.isaeva@kstu.kg", Phone: "+996700000002",
				Gender: "f", BirthDate: "1980-11-02", TypeCode: "T",
			},
			department: "ФИТ", position: "доцент",
		},
		{
			username: "employee", password: "password",
			user: sessdomain.User{
				ID: 103, FirstName: "Нурлан", LastName: "Жумабеков", Patronymic: "",
				Email: "n.jumabekov@kstu.kg", Phone: "+996700000003",
				Gender: "m", BirthDate: "1990-05-25", TypeCode: "",
			},
			department: "АХЧ", position: "инженер",
		},
	}

	for _, a := range seed {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Fatal("seed account hash", zap.Error(err))
		}
		acc := &Account{
			Username:     a.username,
			PasswordHash: hash,
			User:         a.user,
			Department:   a.department,
			Position:     a.position,
		}
		s.accounts[a.username] = acc
		s.byID[a.user.ID] = acc
	}
}

// accessClaims mirrors the token payload contract the client decodes: the
// identity rides in a nested "user" object.
type accessClaims struct {
	User    sessdomain.User `json:"user"`
	Purpose string          `json:"purpose"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (s *Server) issuePair(acc *Account) (sessdomain.TokenPair, error) {
	now := time.Now()
	sub := strconv.FormatInt(acc.User.ID, 10)

	user := acc.User
	user.NotificationCount = s.hub.Count(acc.User.ID)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		User:    user,
		Purpose: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.DevAccessTTL)),
		},
	})
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims{
		Purpose: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.DevRefreshTTL)),
		},
	})

	accessStr, err := access.SignedString([]byte(s.cfg.DevJWTSecret))
	if err != nil {
		return sessdomain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshStr, err := refresh.SignedString([]byte(s.cfg.DevJWTSecret))
	if err != nil {
		return sessdomain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return sessdomain.TokenPair{AccessToken: accessStr, RefreshToken: refreshStr}, nil
}

func (s *Server) handleLogin(c *gin.Context) {
	var req sessdomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	s.mu.Lock()
	acc := s.accounts[req.Username]
	s.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(req.Password)) != nil {
		response.Error(c, http.StatusBadRequest, "неверный логин или пароль", nil)
		return
	}

	pair, err := s.issuePair(acc)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "token issue failed", err)
		return
	}
	response.Success(c, http.StatusOK, "login successful", pair)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req sessdomain.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	claims := &refreshClaims{}
	tok, err := jwt.ParseWithClaims(req.RefreshToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.DevJWTSecret), nil
	})
	if err != nil || !tok.Valid || claims.Purpose != "refresh" {
		response.Unauthorized(c, "invalid refresh token")
		return
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		response.Unauthorized(c, "invalid refresh token")
		return
	}

	s.mu.Lock()
	acc := s.byID[id]
	s.mu.Unlock()
	if acc == nil {
		response.Unauthorized(c, "unknown account")
		return
	}

	pair, err := s.issuePair(acc)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "token issue failed", err)
		return
	}
	response.Success(c, http.StatusOK, "token refreshed", pair)
}

// authRequired validates the bearer token and stores the identity id in the
// request context.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)
		if raw == "" {
			response.Unauthorized(c, "missing authorization token")
			return
		}

		claims, err := s.parseAccess(raw)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set("identity_id", claims.User.ID)
		c.Next()
	}
}

func (s *Server) parseAccess(raw string) (*accessClaims, error) {
	claims := &accessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.DevJWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.Purpose != "access" {
		return nil, fmt.Errorf("not a valid access token")
	}
	return claims, nil
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Websocket clients can't always set headers.
	return c.Query("token")
}

// account resolves the authenticated account or writes a 401.
func (s *Server) account(c *gin.Context) *Account {
	id, exists := c.Get("identity_id")
	if !exists {
		response.Unauthorized(c, "authentication required")
		return nil
	}

	s.mu.Lock()
	acc := s.byID[id.(int64)]
	s.mu.Unlock()
	if acc == nil {
		response.Unauthorized(c, "unknown account")
		return nil
	}
	return acc
}
