package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"registration-service/internal/config"
	"registration-service/internal/util"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	dataKeyLifetime = 5 * time.Minute
	localKeyID      = "local"
)

// KMSAPI is the subset of the KMS client used for envelope encryption.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type EncryptedData struct {
	EncryptedValue string    `json:"v"`
	EncryptedDEK   string    `json:"k"`
	KeyID          string    `json:"id"`
	Version        string    `json:"ver"`
	CreatedAt      time.Time `json:"t"`
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
	expiresAt  time.Time
}

// EncryptionManager seals values with AES-256-GCM under a data key. With KMS
// enabled the data key is wrapped by the configured KMS key and reused for a
// few minutes. Without KMS the data key travels base64 encoded next to the
// value, which only suits development.
type EncryptionManager struct {
	kmsClient KMSAPI
	config    config.KMSConfig
	clock     clock.Clock
	keyCache  sync.Map // encrypted DEK -> plaintext DEK

	mu      sync.Mutex
	current *DataKey
}

func NewEncryptionManager(cfg config.KMSConfig, kmsClient KMSAPI, clk clock.Clock) *EncryptionManager {
	if clk == nil {
		clk = clock.New()
	}
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
		clock:     clk,
	}
}

func (em *EncryptionManager) kmsEnabled() bool {
	return em.config.Enabled && em.kmsClient != nil
}

// GenerateDataKey returns the active data key, asking KMS for a new one when
// the previous one has expired.
func (em *EncryptionManager) GenerateDataKey(ctx context.Context) (*DataKey, error) {
	if !em.kmsEnabled() {
		return em.generateLocalKey()
	}

	em.mu.Lock()
	defer em.mu.Unlock()

	now := em.clock.Now()
	if em.current != nil && now.Before(em.current.expiresAt) {
		return em.current, nil
	}

	result, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.config.KeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	em.current = &DataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      em.config.KeyID,
		expiresAt:  now.Add(dataKeyLifetime),
	}
	em.keyCache.Store(base64.StdEncoding.EncodeToString(result.CiphertextBlob), result.Plaintext)

	util.Debug("Generated new data key", zap.String("key_id", em.config.KeyID))
	return em.current, nil
}

func (em *EncryptionManager) generateLocalKey() (*DataKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return &DataKey{
		Plaintext:  key,
		Ciphertext: key,
		KeyID:      localKeyID,
	}, nil
}

// EncryptField encrypts a value using envelope encryption
func (em *EncryptionManager) EncryptField(ctx context.Context, plaintext string) (*EncryptedData, error) {
	dataKey, err := em.GenerateDataKey(ctx)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return &EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK:   base64.StdEncoding.EncodeToString(dataKey.Ciphertext),
		KeyID:          dataKey.KeyID,
		Version:        "v1",
		CreatedAt:      em.clock.Now().UTC(),
	}, nil
}

// DecryptField decrypts an encrypted value
func (em *EncryptionManager) DecryptField(ctx context.Context, encryptedData *EncryptedData) (string, error) {
	if cached, ok := em.keyCache.Load(encryptedData.EncryptedDEK); ok {
		return decryptWithKey(encryptedData.EncryptedValue, cached.([]byte))
	}

	wrapped, err := base64.StdEncoding.DecodeString(encryptedData.EncryptedDEK)
	if err != nil {
		return "", fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
	}

	if encryptedData.KeyID == localKeyID {
		return decryptWithKey(encryptedData.EncryptedValue, wrapped)
	}
	if !em.kmsEnabled() {
		return "", fmt.Errorf("%w: KMS key %s required", ErrDecryptionFailed, encryptedData.KeyID)
	}

	result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: wrapped})
	if err != nil {
		return "", fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
	}

	em.keyCache.Store(encryptedData.EncryptedDEK, result.Plaintext)

	return decryptWithKey(encryptedData.EncryptedValue, result.Plaintext)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func decryptWithKey(encryptedValue string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// GetCacheSize returns the number of cached DEKs
func (em *EncryptionManager) GetCacheSize() int {
	count := 0
	em.keyCache.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
