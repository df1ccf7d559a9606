package tls_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cliTLS "github.com/fzdarsky/quietplanet/internal/cli/tls"
)

func createTestCertificate(t *testing.T, commonName string) *x509.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"QuietPlanet Test"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{commonName},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestFingerprint(t *testing.T) {
	cert1 := createTestCertificate(t, "same.test")
	cert2 := createTestCertificate(t, "same.test")

	fp := cliTLS.Fingerprint(cert1)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))
	assert.Equal(t, fp, cliTLS.Fingerprint(cert1), "fingerprint should be stable")
	assert.NotEqual(t, fp, cliTLS.Fingerprint(cert2), "different keys give different fingerprints")
}

func TestKnownHosts_TrustAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts.yaml")
	hosts, err := cliTLS.LoadKnownHosts(path)
	require.NoError(t, err)

	cert := createTestCertificate(t, "login.test")
	other := createTestCertificate(t, "login.test")

	known, err := hosts.Check("login.test:8443", cert)
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, hosts.Trust("login.test:8443", cert))

	known, err = hosts.Check("login.test:8443", cert)
	require.NoError(t, err)
	assert.True(t, known)

	_, err = hosts.Check("login.test:8443", other)
	assert.ErrorIs(t, err, cliTLS.ErrFingerprintMismatch)

	// Pins survive a reload.
	reloaded, err := cliTLS.LoadKnownHosts(path)
	require.NoError(t, err)
	known, err = reloaded.Check("login.test:8443", cert)
	require.NoError(t, err)
	assert.True(t, known)

	require.NoError(t, reloaded.Forget("login.test:8443"))
	known, err = reloaded.Check("login.test:8443", other)
	require.NoError(t, err)
	assert.False(t, known)
}

func TestLoadKnownHosts_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hosts: [oops"), 0o600))

	_, err := cliTLS.LoadKnownHosts(path)
	assert.Error(t, err)
}

func TestPromptAccept(t *testing.T) {
	cert := createTestCertificate(t, "login.test")

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "yes\n", true},
		{"short yes", "Y\n", true},
		{"no", "no\n", false},
		{"retry then yes", "maybe\ny\n", true},
		{"eof", "", false},
		{"gives up", "a\nb\nc\ny\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			accept := cliTLS.PromptAccept(strings.NewReader(tt.input), &out)

			assert.Equal(t, tt.want, accept("login.test:8443", cert))
			assert.Contains(t, out.String(), cliTLS.Fingerprint(cert))
		})
	}
}

func get(t *testing.T, url string, cfg *tls.Config) error {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
	resp, err := client.Get(url) //nolint:noctx // test request
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func TestClientConfig_TrustOnFirstUse(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hosts, err := cliTLS.LoadKnownHosts(filepath.Join(t.TempDir(), "known_hosts.yaml"))
	require.NoError(t, err)
	host := strings.TrimPrefix(srv.URL, "https://")

	reject := func(string, *x509.Certificate) bool { return false }
	err = get(t, srv.URL, hosts.ClientConfig(host, reject))
	require.Error(t, err)
	assert.Contains(t, err.Error(), cliTLS.ErrCertificateRejected.Error())

	prompts := 0
	countingAccept := func(string, *x509.Certificate) bool {
		prompts++
		return true
	}
	require.NoError(t, get(t, srv.URL, hosts.ClientConfig(host, countingAccept)))
	require.NoError(t, get(t, srv.URL, hosts.ClientConfig(host, countingAccept)))
	assert.Equal(t, 1, prompts, "a pinned certificate is not prompted again")

	// A different certificate for the same host is refused without prompting.
	require.NoError(t, hosts.Trust(host, createTestCertificate(t, "impostor.test")))
	err = get(t, srv.URL, hosts.ClientConfig(host, cliTLS.AssumeYes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate changed")
}
