package config

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"io"
	"os"
)

// CABundle returns the PEM bundle configured for the AWS transport.
// Returns nil, nil if no bundle is configured.
func (c *Config) CABundle() (io.Reader, error) {
	if c.CABundlePath == "" {
		return nil, nil
	}

	caPEM, err := os.ReadFile(c.CABundlePath)
	if err != nil {
		return nil, fmt.Errorf("read AWS CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse AWS CA bundle")
	}

	return bytes.NewReader(caPEM), nil
}
