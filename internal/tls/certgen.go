// Package tls provides TLS configuration and development certificates for the QuietPlanet
// service.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// DevCertValidity is the lifetime of generated development certificates.
const DevCertValidity = 90 * 24 * time.Hour

// devSANs returns the names a development certificate is valid for.
func devSANs() (dnsNames []string, ipAddresses []net.IP) {
	dnsNames = []string{"localhost"}
	ipAddresses = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}

	if hostname, err := os.Hostname(); err == nil && hostname != "" && hostname != "localhost" {
		dnsNames = append(dnsNames, hostname)
	}
	return dnsNames, ipAddresses
}

// EnsureDevCertificate writes a self-signed certificate and key when either file is missing.
// It reports whether new files were written.
func EnsureDevCertificate(certPath, keyPath string) (bool, error) {
	if CertificateExists(certPath, keyPath) {
		return false, ValidateCertificate(certPath)
	}
	if err := GenerateSelfSignedCert(certPath, keyPath, DevCertValidity); err != nil {
		return false, err
	}
	return true, nil
}

// GenerateSelfSignedCert generates a self-signed ECDSA P-256 certificate and key.
//
//nolint:gosec // G304: File paths are from config
func GenerateSelfSignedCert(certPath, keyPath string, validity time.Duration) error {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	dnsNames, ipAddresses := devSANs()
	now := time.Now()

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"QuietPlanet"},
			CommonName:   "QuietPlanet Development",
		},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(validity),

		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,

		DNSNames:    dnsNames,
		IPAddresses: ipAddresses,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	//nolint:gofumpt // formatting is acceptable
	if err := writePEM(certPath, "CERTIFICATE", derBytes, 0644); err != nil {
		return err
	}
	//nolint:gofumpt // formatting is acceptable
	if err := writePEM(keyPath, "EC PRIVATE KEY", privateKeyBytes, 0600); err != nil {
		return err
	}

	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	//nolint:gosec // G301: 0755 is standard for directory permissions
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile does not change the mode of an existing file.
	if err := os.Chmod(path, perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	return nil
}

// CertificateExists checks if both certificate and key files exist.
func CertificateExists(certPath, keyPath string) bool {
	if _, err := os.Stat(certPath); errors.Is(err, os.ErrNotExist) {
		return false
	}
	if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
		return false
	}
	return true
}

// ValidateCertificate checks if a certificate file is valid and not expired.
//
//nolint:gosec // G304: Certificate path is from config
func ValidateCertificate(certPath string) error {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}

	return nil
}
