package encryption

import (
	"context"
	"encoding/json"
	"fmt"
)

// CodeSealer stores a code as the JSON form of its EncryptedData.
type CodeSealer struct {
	manager *EncryptionManager
}

func NewCodeSealer(manager *EncryptionManager) *CodeSealer {
	return &CodeSealer{manager: manager}
}

func (s *CodeSealer) Seal(ctx context.Context, plaintext string) (string, error) {
	data, err := s.manager.EncryptField(ctx, plaintext)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return string(raw), nil
}

func (s *CodeSealer) Open(ctx context.Context, sealed string) (string, error) {
	var data EncryptedData
	if err := json.Unmarshal([]byte(sealed), &data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return s.manager.DecryptField(ctx, &data)
}
