// Package token decodes the identity payload the portal embeds in access
// tokens. Decoding is deliberately unverified: the server is the verifying
// party for every real action, the client only needs the claims.
package token

import (
	"github.com/golang-jwt/jwt/v5"

	"kstu-mobile/internal/domain/session"
)

type identityClaims struct {
	User *identityPayload `json:"user"`
	jwt.RegisteredClaims
}

type identityPayload struct {
	ID                int64  `json:"id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Patronymic        string `json:"patronymic"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	AvatarURL         string `json:"avatar"`
	Gender            string `json:"gender"`
	BirthDate         string `json:"birth_date"`
	TypeCode          string `json:"user_type"`
	NotificationCount int    `json:"notification_count"`
}

// Decode extracts the user identity from an access token. It is a pure
// function of the token string: no I/O, no signature verification. Any
// structural failure, including a missing identity object, yields nil.
func Decode(tokenString string) *session.User {
	if tokenString == "" {
		return nil
	}

	claims := &identityClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	if claims.User == nil {
		return nil
	}

	p := claims.User
	return &session.User{
		ID:                p.ID,
		FirstName:         p.FirstName,
		LastName:          p.LastName,
		Patronymic:        p.Patronymic,
		Email:             p.Email,
		Phone:             p.Phone,
		AvatarURL:         p.AvatarURL,
		Gender:            p.Gender,
		BirthDate:         p.BirthDate,
		TypeCode:          p.TypeCode,
		NotificationCount: p.NotificationCount,
		Role:              session.RoleFromTypeCode(p.TypeCode),
	}
}
