package model

import "time"

// Credential is the cached bearer credential for the signed-in session.
// ExpiresAt is epoch milliseconds. EncryptedRefreshToken rides along in the
// same record so silent reauthentication survives an expired access token.
type Credential struct {
	AccessToken           string `json:"accessToken" dynamodbav:"access_token"`
	ExpiresAt             int64  `json:"expiresAt" dynamodbav:"expires_at"`
	EncryptedRefreshToken string `json:"encryptedRefreshToken,omitempty" dynamodbav:"encrypted_refresh_token"`
}

// Valid reports whether the access token can still be used at the given time.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.UnixMilli() < c.ExpiresAt
}

// FileDescriptor is the snapshot of a remote file returned by a list call.
// It is never cached across calls and never mutated locally.
type FileDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}
