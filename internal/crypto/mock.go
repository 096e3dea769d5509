package crypto

import (
	"context"
	"strings"
)

const mockPrefix = "mock:"

// MockEncryptor is a pass-through Encryptor for local runs without KMS.
// The prefix makes mocked ciphertext recognizable in stored records.
type MockEncryptor struct{}

func NewMockEncryptor() *MockEncryptor {
	return &MockEncryptor{}
}

func (m *MockEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	return mockPrefix + plaintext, nil
}

func (m *MockEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, mockPrefix), nil
}
