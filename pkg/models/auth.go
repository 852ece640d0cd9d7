package models

import "time"

// CaptureToken stands for a screen-capture permission the host obtained
// from the user. Sessions can only start with a valid token.
type CaptureToken struct {
	Token     string    // The actual token string
	CreatedAt time.Time // When token was created
	ExpiresAt time.Time // When token expires
	GrantedTo string    // Address of the caller that requested it
	Revoked   bool      // Whether the permission was withdrawn
}

// IsValid checks if the token is still valid
func (t *CaptureToken) IsValid() bool {
	return !t.Revoked && time.Now().Before(t.ExpiresAt)
}

// AuthorizeRequest asks for a capture token
type AuthorizeRequest struct {
	ExpiresIn int `json:"expiresIn"` // Seconds until expiration (default 3600)
}

// AuthorizeResponse carries a freshly issued capture token
type AuthorizeResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// StartRequest starts a session with the given capture parameters
type StartRequest struct {
	Token string `json:"token" binding:"required"`
	CaptureConfig
}
