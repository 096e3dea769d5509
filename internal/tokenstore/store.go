// Package tokenstore persists the single cached bearer credential.
//
// One record, one fixed key. A record whose expiry has passed, or that cannot
// be decoded, is treated as absent; the encrypted refresh token inside the
// record stays readable either way so silent reauthentication can still run.
package tokenstore

import (
	"context"
	"errors"

	"github.com/mkondo/driveman/internal/model"
)

// StorageKey is the fixed name the credential record is stored under.
const StorageKey = "driveman_credential"

// ErrNoRefreshToken is returned when the stored record carries no refresh token.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// Store persists the session credential.
type Store interface {
	// Load returns the cached credential, or nil when the record is absent,
	// expired, or malformed.
	Load(ctx context.Context) (*model.Credential, error)

	// RefreshToken returns the decrypted refresh token from the stored record.
	// Unlike Load it does not apply the expiry rule: an expired access token
	// does not invalidate the refresh token.
	RefreshToken(ctx context.Context) (string, error)

	// Save persists the credential. A non-empty refreshToken is encrypted and
	// stored alongside it; an empty one preserves whatever is already stored.
	Save(ctx context.Context, cred model.Credential, refreshToken string) error

	// Clear removes the record. Clearing an absent record is not an error.
	Clear(ctx context.Context) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}
