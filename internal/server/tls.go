// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

// tlsMode is how the portal terminates HTTPS.
type tlsMode string

const (
	modeOff        tlsMode = "off"
	modeACME       tlsMode = "acme"
	modeSelfSigned tlsMode = "selfsigned"
	modeManual     tlsMode = "manual"
)

// certRenewWindow is how long before expiry a self-signed portal
// certificate is replaced.
const certRenewWindow = 30 * 24 * time.Hour

// listenPlan describes the listeners the portal opens.
type listenPlan struct {
	mode tlsMode
	addr string
	tls  *tls.Config

	// challenge answers ACME HTTP-01 requests on :80 and redirects the rest.
	challenge http.Handler
}

// secure reports whether the main listener speaks HTTPS.
func (p *listenPlan) secure() bool { return p.tls != nil }

// planListeners resolves the TLS mode from cfg and prepares its certificates.
func planListeners(cfg *config.Config) (*listenPlan, error) {
	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	mode := pickMode(cfg.TLS, cfg.Server.Host, portFree)
	slog.Info("tls mode resolved", "mode", mode, "configured", cfg.TLS.Mode)

	switch mode {
	case modeOff:
		return &listenPlan{mode: modeOff, addr: addr}, nil
	case modeACME:
		if err := acmeReady(cfg, portFree); err != nil {
			return nil, err
		}
		return acmePlan(cfg)
	case modeSelfSigned:
		cert, err := selfSignedCert(filepath.Join(cfg.TLS.CertDir, "selfsigned"), cfg.Server.Host)
		if err != nil {
			return nil, err
		}
		slog.Warn("serving a self-signed certificate, participants will see a browser warning",
			"sha256", fingerprint(cert))
		return &listenPlan{mode: modeSelfSigned, addr: addr, tls: withCert(cert)}, nil
	case modeManual:
		cert, err := manualCert(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		slog.Info("serving configured certificate", "cert", cfg.TLS.CertFile, "sha256", fingerprint(cert))
		return &listenPlan{mode: modeManual, addr: addr, tls: withCert(cert)}, nil
	}
	return nil, fmt.Errorf("unknown TLS mode %q", mode)
}

// pickMode returns the configured mode, or for "auto" the best mode the host
// supports: plain HTTP on localhost, the operator's certificate when one is
// configured, Let's Encrypt when it can answer challenges, else self-signed.
func pickMode(tc config.TLSConfig, host string, free func(int) bool) tlsMode {
	switch m := tlsMode(strings.ToLower(tc.Mode)); m {
	case modeOff, modeACME, modeSelfSigned, modeManual:
		return m
	case "auto", "":
	default:
		slog.Warn("unknown TLS mode, falling back to auto", "mode", tc.Mode)
	}

	switch {
	case config.IsLocalhost(host):
		return modeOff
	case tc.CertFile != "" && tc.KeyFile != "":
		return modeManual
	case acmeEligible(tc, host, free) == nil:
		return modeACME
	default:
		return modeSelfSigned
	}
}

// acmeEligible reports why Let's Encrypt cannot issue for host, or nil.
func acmeEligible(tc config.TLSConfig, host string, free func(int) bool) error {
	switch {
	case config.IsLocalhost(host):
		return errors.New("acme: host is local")
	case net.ParseIP(host) != nil:
		return errors.New("acme: host is an IP address")
	case tc.Email == "":
		return errors.New("acme: TLS_EMAIL is not set")
	case !free(80):
		return errors.New("acme: port 80 is in use")
	case !free(443):
		return errors.New("acme: port 443 is in use")
	}
	return nil
}

// acmeReady validates an explicitly requested ACME mode.
func acmeReady(cfg *config.Config, free func(int) bool) error {
	if cfg.Server.Port != 443 {
		slog.Warn("acme mode always listens on :443", "configured_port", cfg.Server.Port)
	}
	return acmeEligible(cfg.TLS, cfg.Server.Host, free)
}

func portFree(port int) bool {
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func acmePlan(cfg *config.Config) (*listenPlan, error) {
	dir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create acme cache: %w", err)
	}
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(dir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}
	tc := m.TLSConfig()
	tc.MinVersion = tls.VersionTLS12
	slog.Info("requesting certificates from Let's Encrypt", "host", cfg.Server.Host, "email", cfg.TLS.Email)
	return &listenPlan{mode: modeACME, addr: ":443", tls: tc, challenge: m.HTTPHandler(nil)}, nil
}

// selfSignedCert reuses the certificate in dir unless it is unreadable or
// close to expiry, in which case a new one is issued for host.
func selfSignedCert(dir, host string) (*tls.Certificate, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cert dir: %w", err)
	}
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	switch {
	case err == nil && !expiresWithin(&cert, certRenewWindow):
		return &cert, nil
	case err == nil:
		slog.Info("self-signed certificate expires soon, reissuing")
	case !errors.Is(err, os.ErrNotExist):
		slog.Warn("self-signed certificate unreadable, reissuing", "error", err)
	}
	return issueSelfSigned(host, certFile, keyFile, time.Now())
}

func manualCert(certFile, keyFile string) (*tls.Certificate, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("manual TLS mode requires both cert-file and key-file")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &cert, nil
}

// issueSelfSigned writes a one-year ECDSA P-256 certificate for host, plus
// the loopback names, to certFile and keyFile.
func issueSelfSigned(host, certFile, keyFile string, now time.Time) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Study Portal"}, CommonName: host},
		NotBefore:             now,
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if host != "" {
		tmpl.DNSNames = append(tmpl.DNSNames, host)
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
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load issued certificate: %w", err)
	}
	return &cert, nil
}

func expiresWithin(cert *tls.Certificate, d time.Duration) bool {
	if len(cert.Certificate) == 0 {
		return true
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return true
	}
	return time.Until(leaf.NotAfter) < d
}

// fingerprint is the colon separated SHA-256 of the leaf certificate, the
// form browsers show when asked to trust a self-signed certificate.
func fingerprint(cert *tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	sum := sha256.Sum256(cert.Certificate[0])
	parts := make([]string, len(sum))
	for i := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString(sum[i : i+1]))
	}
	return strings.Join(parts, ":")
}

func withCert(cert *tls.Certificate) *tls.Config {
	return &tls.Config{Certificates: []tls.Certificate{*cert}, MinVersion: tls.VersionTLS12}
}
