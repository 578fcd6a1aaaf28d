package session

// LoginRequest for the remote auth endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest for the remote refresh endpoint.
type RefreshRequest struct {
	RefreshToken string `json:"refresh"`
}
