package client

import (
	"crypto/tls"
	"net/http"

	"github.com/fzdarsky/quietplanet/internal/cli/config"
	cliTLS "github.com/fzdarsky/quietplanet/internal/cli/tls"
)

// newTransport picks plain HTTP, CA verification or certificate pinning from cfg.
func newTransport(cfg *config.Config, accept cliTLS.AcceptFunc) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.Plaintext {
		return transport, nil
	}

	var tlsConfig *tls.Config
	if cfg.CACert != "" {
		var err error
		if tlsConfig, err = cliTLS.CAConfig(cfg.CACert); err != nil {
			return nil, err
		}
	} else {
		path, err := cliTLS.DefaultKnownHostsPath()
		if err != nil {
			return nil, err
		}
		hosts, err := cliTLS.LoadKnownHosts(path)
		if err != nil {
			return nil, err
		}
		tlsConfig = hosts.ClientConfig(cfg.Address(), accept)
	}

	transport.TLSClientConfig = tlsConfig
	return transport, nil
}
