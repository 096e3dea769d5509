package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/mkondo/driveman/internal/crypto"
	"github.com/mkondo/driveman/internal/model"
)

// FileStore keeps the credential record as a JSON file inside a state
// directory, the local-run counterpart of the DynamoDB store.
type FileStore struct {
	path      string
	encryptor crypto.Encryptor
	clock     clockwork.Clock
}

// NewFileStore creates a FileStore rooted at dir. The directory is created if
// needed.
func NewFileStore(dir string, encryptor crypto.Encryptor, clock clockwork.Clock) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token dir: %w", err)
	}
	return &FileStore{
		path:      filepath.Join(dir, StorageKey+".json"),
		encryptor: encryptor,
		clock:     clock,
	}, nil
}

// read returns the raw record with no expiry applied, or nil when the file is
// missing or malformed.
func (s *FileStore) read() *model.Credential {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil
	}
	return &cred
}

func (s *FileStore) Load(_ context.Context) (*model.Credential, error) {
	cred := s.read()
	if cred == nil || !cred.Valid(s.clock.Now()) {
		return nil, nil
	}
	return cred, nil
}

func (s *FileStore) RefreshToken(ctx context.Context) (string, error) {
	cred := s.read()
	if cred == nil || cred.EncryptedRefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	token, err := s.encryptor.Decrypt(ctx, cred.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}
	return token, nil
}

func (s *FileStore) Save(ctx context.Context, cred model.Credential, refreshToken string) error {
	if refreshToken != "" {
		encrypted, err := s.encryptor.Encrypt(ctx, refreshToken)
		if err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		cred.EncryptedRefreshToken = encrypted
	} else if existing := s.read(); existing != nil {
		cred.EncryptedRefreshToken = existing.EncryptedRefreshToken
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

func (s *FileStore) Ping(_ context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("token dir unavailable: %w", err)
	}
	return nil
}
