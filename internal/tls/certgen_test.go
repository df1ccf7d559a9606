//nolint:errcheck,gosec,gofumpt // Test file - unchecked errors and relaxed file permissions acceptable
package tls_test

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	tlspkg "github.com/fzdarsky/quietplanet/internal/tls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func certPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "tls")
	return filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")
}

func TestGenerateSelfSignedCert(t *testing.T) {
	certPath, keyPath := certPaths(t)

	require.NoError(t, tlspkg.GenerateSelfSignedCert(certPath, keyPath, 24*time.Hour))

	certInfo, err := os.Stat(certPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), certInfo.Mode().Perm())

	keyInfo, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm())

	certPEM, err := os.ReadFile(certPath)
	require.NoError(t, err)
	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)

	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, "QuietPlanet Development", cert.Subject.CommonName)
	assert.Contains(t, cert.DNSNames, "localhost")
	assert.Contains(t, cert.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), cert.NotAfter, time.Minute)

	_, err = tlspkg.NewServerConfig(certPath, keyPath)
	assert.NoError(t, err)
}

func TestEnsureDevCertificate(t *testing.T) {
	certPath, keyPath := certPaths(t)

	generated, err := tlspkg.EnsureDevCertificate(certPath, keyPath)
	require.NoError(t, err)
	assert.True(t, generated)

	before, err := os.ReadFile(certPath)
	require.NoError(t, err)

	generated, err = tlspkg.EnsureDevCertificate(certPath, keyPath)
	require.NoError(t, err)
	assert.False(t, generated)

	after, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing certificate must be kept")
}

func TestCertificateExists(t *testing.T) {
	certPath, keyPath := certPaths(t)
	assert.False(t, tlspkg.CertificateExists(certPath, keyPath))

	require.NoError(t, tlspkg.GenerateSelfSignedCert(certPath, keyPath, time.Hour))
	assert.True(t, tlspkg.CertificateExists(certPath, keyPath))

	require.NoError(t, os.Remove(keyPath))
	assert.False(t, tlspkg.CertificateExists(certPath, keyPath))
}

func TestValidateCertificate_Errors(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, tlspkg.ValidateCertificate(filepath.Join(dir, "missing.crt")))

	invalid := filepath.Join(dir, "invalid.crt")
	require.NoError(t, os.WriteFile(invalid, []byte("not a certificate"), 0644))
	err := tlspkg.ValidateCertificate(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode PEM block")

	certPath, keyPath := certPaths(t)
	require.NoError(t, tlspkg.GenerateSelfSignedCert(certPath, keyPath, -time.Hour))
	err = tlspkg.ValidateCertificate(certPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestNewServerConfig_MissingFiles(t *testing.T) {
	certPath, keyPath := certPaths(t)
	_, err := tlspkg.NewServerConfig(certPath, keyPath)
	assert.Error(t, err)
}
