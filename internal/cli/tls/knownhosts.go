// Package tls provides trust-on-first-use certificate pinning for the qp CLI tool.
package tls

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fzdarsky/quietplanet/internal/cli/config"
)

const knownHostsFileName = "known_hosts.yaml"

var (
	// ErrFingerprintMismatch is returned when a host presents a different certificate
	// than the one trusted earlier.
	ErrFingerprintMismatch = errors.New("server certificate changed since it was first trusted")

	// ErrCertificateRejected is returned when an unknown certificate is not accepted.
	ErrCertificateRejected = errors.New("server certificate rejected")
)

// Fingerprint returns "SHA256:<base64>" of the DER certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:])
}

// KnownHost is a trusted certificate fingerprint.
type KnownHost struct {
	Host        string    `yaml:"host"`
	Fingerprint string    `yaml:"fingerprint"`
	AcceptedAt  time.Time `yaml:"accepted_at"`
}

type knownHostsFile struct {
	Hosts []KnownHost `yaml:"hosts"`
}

// KnownHosts is the on-disk list of trusted server certificates.
type KnownHosts struct {
	path  string
	mu    sync.Mutex
	hosts map[string]KnownHost
	now   func() time.Time
}

// DefaultKnownHostsPath returns the known hosts file in the user config directory.
func DefaultKnownHostsPath() (string, error) {
	dir, err := config.UserConfigDir()
	if err != nil {
		return "", err
	}
	if err := config.EnsureDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, knownHostsFileName), nil
}

// LoadKnownHosts reads path. A missing file yields an empty list.
func LoadKnownHosts(path string) (*KnownHosts, error) {
	k := &KnownHosts{
		path:  path,
		hosts: make(map[string]KnownHost),
		now:   time.Now,
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is in the user config directory
	if err != nil {
		if os.IsNotExist(err) {
			return k, nil
		}
		return nil, fmt.Errorf("failed to read known hosts file: %w", err)
	}

	var file knownHostsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse known hosts file: %w", err)
	}
	for _, h := range file.Hosts {
		k.hosts[h.Host] = h
	}
	return k, nil
}

// Check reports whether cert is the trusted certificate for host. It returns
// ErrFingerprintMismatch when host is pinned to another certificate.
func (k *KnownHosts) Check(host string, cert *x509.Certificate) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.hosts[host]
	if !ok {
		return false, nil
	}
	if entry.Fingerprint != Fingerprint(cert) {
		return false, fmt.Errorf("%w: %s (trusted %s, presented %s)",
			ErrFingerprintMismatch, host, entry.Fingerprint, Fingerprint(cert))
	}
	return true, nil
}

// Trust pins cert for host and saves the file.
func (k *KnownHosts) Trust(host string, cert *x509.Certificate) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.hosts[host] = KnownHost{
		Host:        host,
		Fingerprint: Fingerprint(cert),
		AcceptedAt:  k.now().UTC(),
	}
	return k.save()
}

// Forget removes any pin for host and saves the file.
func (k *KnownHosts) Forget(host string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.hosts[host]; !ok {
		return nil
	}
	delete(k.hosts, host)
	return k.save()
}

func (k *KnownHosts) save() error {
	file := knownHostsFile{Hosts: make([]KnownHost, 0, len(k.hosts))}
	for _, h := range k.hosts {
		file.Hosts = append(file.Hosts, h)
	}
	sort.Slice(file.Hosts, func(i, j int) bool { return file.Hosts[i].Host < file.Hosts[j].Host })

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to marshal known hosts: %w", err)
	}

	// #nosec G306 - fingerprints are public
	if err := os.WriteFile(k.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write known hosts file: %w", err)
	}
	return nil
}

// AcceptFunc decides whether to trust a certificate seen for the first time.
type AcceptFunc func(host string, cert *x509.Certificate) bool

// ClientConfig returns a TLS 1.3 client config that pins the certificate host presents.
// Unknown certificates are passed to accept and pinned when accepted.
func (k *KnownHosts) ClientConfig(host string, accept AcceptFunc) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		// Chain verification is replaced by the pin check in VerifyConnection.
		InsecureSkipVerify: true, // #nosec G402
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("no TLS certificate received from server")
			}
			cert := cs.PeerCertificates[0]

			known, err := k.Check(host, cert)
			if err != nil || known {
				return err
			}

			if accept == nil || !accept(host, cert) {
				return ErrCertificateRejected
			}
			return k.Trust(host, cert)
		},
	}
}

// CAConfig returns a TLS 1.3 client config that verifies servers against the PEM bundle
// at caCertPath.
func CAConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath) // #nosec G304 - user-provided CA path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS13,
		RootCAs:    pool,
	}, nil
}
