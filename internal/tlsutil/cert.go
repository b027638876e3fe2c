// Package tlsutil loads the serving certificate for the edge listener.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
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

	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/config"
)

const (
	certFileName     = "edgerules.crt"
	keyFileName      = "edgerules.key"
	defaultStorePath = "certs"
	certValidity     = 365 * 24 * time.Hour
)

// ErrNoCertificate is returned when no pair is configured or stored and
// generation is disabled
var ErrNoCertificate = errors.New("no TLS certificate available")

// Loader resolves the certificate pair for the server
type Loader struct {
	certFile     string
	keyFile      string
	storePath    string
	autoGenerate bool
	logger       *zap.Logger
}

// NewLoader creates a loader from the server TLS settings
func NewLoader(cfg config.TLSConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.L()
	}
	storePath := cfg.StorePath
	if storePath == "" {
		storePath = defaultStorePath
	}
	return &Loader{
		certFile:     cfg.CertFile,
		keyFile:      cfg.KeyFile,
		storePath:    storePath,
		autoGenerate: cfg.AutoGenerate,
		logger:       logger,
	}
}

// Paths returns the certificate and key paths the loader reads
func (l *Loader) Paths() (certPath, keyPath string) {
	if l.certFile != "" && l.keyFile != "" {
		return l.certFile, l.keyFile
	}
	return filepath.Join(l.storePath, certFileName), filepath.Join(l.storePath, keyFileName)
}

// Certificate returns the configured pair, falling back to the store
// directory and then to a freshly generated self-signed pair.
func (l *Loader) Certificate() (*tls.Certificate, error) {
	if l.certFile != "" && l.keyFile != "" {
		cert, err := tls.LoadX509KeyPair(l.certFile, l.keyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate %s: %w", l.certFile, err)
		}
		return &cert, nil
	}

	certPath, keyPath := l.Paths()
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil {
		return &cert, nil
	}
	if !l.autoGenerate {
		return nil, fmt.Errorf("%w in %s", ErrNoCertificate, l.storePath)
	}

	l.logger.Warn("generating self-signed certificate", zap.String("dir", l.storePath))
	return l.generate(certPath, keyPath)
}

// TLSConfig returns a server config carrying the resolved certificate
func (l *Loader) TLSConfig() (*tls.Config, error) {
	cert, err := l.Certificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (l *Loader) generate(certPath, keyPath string) (*tls.Certificate, error) {
	if err := os.MkdirAll(l.storePath, 0o700); err != nil {
		return nil, fmt.Errorf("create certificate dir: %w", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"edgerules"},
			CommonName:   "edgerules self-signed",
		},
		NotBefore:             now,
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           append([]net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}, interfaceIPs()...),
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// interfaceIPs lists non-loopback addresses of local interfaces
func interfaceIPs() []net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips
}
