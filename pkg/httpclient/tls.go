package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// TLSConfig customizes transport security for self-hosted endpoints,
// typically an Ollama instance behind a private CA.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Development
	// and test environments only.
	InsecureSkipVerify bool

	// CACertificate is a path to a PEM file appended to the root pool.
	CACertificate string
}

// ConfigureTLS builds an http.Transport from the config.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{},
	}
	if config == nil {
		return transport, nil
	}

	if config.CACertificate != "" {
		caCert, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate %s: %w", config.CACertificate, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate %s: no PEM blocks found", config.CACertificate)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	if config.InsecureSkipVerify {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	return transport, nil
}

// WithTLSConfig installs a transport built from config. A broken config
// keeps the default transport rather than failing client construction.
func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		if config == nil {
			return
		}
		transport, err := ConfigureTLS(config)
		if err != nil {
			slog.Warn("Failed to configure TLS, keeping default transport", "error", err)
			return
		}
		if c.client != nil {
			c.client.Transport = transport
			return
		}
		c.client = &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		}
	}
}
