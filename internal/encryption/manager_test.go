package encryption

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-service/internal/config"
)

// fakeKMS wraps data keys by prefixing them with a marker.
type fakeKMS struct {
	generated int
	decrypted int
	fail      bool
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, _ *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	if f.fail {
		return nil, errors.New("kms unavailable")
	}
	f.generated++
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &kms.GenerateDataKeyOutput{
		Plaintext:      key,
		CiphertextBlob: append([]byte("wrapped:"), key...),
	}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.decrypted++
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob[len("wrapped:"):]}, nil
}

func TestCodeSealer_LocalRoundTrip(t *testing.T) {
	sealer := NewCodeSealer(NewEncryptionManager(config.KMSConfig{}, nil, nil))

	sealed, err := sealer.Seal(context.Background(), "042137")
	require.NoError(t, err)
	assert.NotEqual(t, "042137", sealed)

	code, err := sealer.Open(context.Background(), sealed)
	require.NoError(t, err)
	assert.Equal(t, "042137", code)
}

func TestCodeSealer_OpenRejectsGarbage(t *testing.T) {
	sealer := NewCodeSealer(NewEncryptionManager(config.KMSConfig{}, nil, nil))

	_, err := sealer.Open(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptionManager_ReusesKMSDataKey(t *testing.T) {
	kmsClient := &fakeKMS{}
	clk := clock.NewMock()
	em := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "alias/registration"}, kmsClient, clk)
	ctx := context.Background()

	first, err := em.EncryptField(ctx, "111111")
	require.NoError(t, err)
	_, err = em.EncryptField(ctx, "222222")
	require.NoError(t, err)
	assert.Equal(t, 1, kmsClient.generated)

	clk.Add(dataKeyLifetime + time.Second)
	_, err = em.EncryptField(ctx, "333333")
	require.NoError(t, err)
	assert.Equal(t, 2, kmsClient.generated)

	plain, err := em.DecryptField(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "111111", plain)
	assert.Equal(t, 0, kmsClient.decrypted)
	assert.Equal(t, 2, em.GetCacheSize())
}

func TestEncryptionManager_DecryptsThroughKMSOnCacheMiss(t *testing.T) {
	kmsClient := &fakeKMS{}
	writer := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "k"}, kmsClient, nil)
	reader := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "k"}, kmsClient, nil)

	data, err := writer.EncryptField(context.Background(), "987654")
	require.NoError(t, err)

	plain, err := reader.DecryptField(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "987654", plain)
	assert.Equal(t, 1, kmsClient.decrypted)
}

func TestEncryptionManager_KMSFailure(t *testing.T) {
	em := NewEncryptionManager(config.KMSConfig{Enabled: true, KeyID: "k"}, &fakeKMS{fail: true}, nil)

	_, err := em.EncryptField(context.Background(), "123456")
	assert.Error(t, err)
}
