package tls

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-service/internal/config"
)

func TestDevCertGenerator_GeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	first, err := gen.GenerateCert([]string{"registration.local", "127.0.0.1"})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(first.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "registration.local")
	require.Len(t, leaf.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", leaf.IPAddresses[0].String())
	assert.FileExists(t, filepath.Join(dir, "dev-key.pem"))

	second, err := gen.GenerateCert([]string{"other.local"})
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0])
}

func TestDevCertGenerator_RegeneratesExpired(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	first, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)

	gen.now = func() time.Time { return time.Now().Add(2 * devCertLifetime) }
	second, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Certificate[0], second.Certificate[0])
}

func TestTLSManager_SelfSignedOnlyOutsideProduction(t *testing.T) {
	server := config.ServerConfig{EnableTLS: true, Domain: "localhost", AutoCertDir: t.TempDir()}

	dev := NewTLSManager(&config.Config{Environment: config.EnvDevelopment, Server: server})
	cert, err := dev.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	assert.NotNil(t, cert)

	prod := NewTLSManager(&config.Config{Environment: config.EnvProduction, Server: server})
	_, err = prod.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestTLSManager_Config(t *testing.T) {
	m := NewTLSManager(&config.Config{Environment: config.EnvDevelopment})
	cfg := m.GetTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.GetCertificate)
}
