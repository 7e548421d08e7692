// Package tlstest generates throwaway certificate authorities and TLS test
// servers for pinning tests.
package tlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"log"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Certs holds a CA and a server certificate signed by it.
type Certs struct {
	Pool   *x509.CertPool
	CA     *x509.Certificate
	Leaf   *x509.Certificate
	Server tls.Certificate

	caKey *ecdsa.PrivateKey
}

// Generate creates a self-signed CA and a leaf valid for localhost,
// 127.0.0.1 and [::1]. Further leaves come from [Certs.Issue].
func Generate(t testing.TB) *Certs {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("tlstest: generate CA key: %v", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"httpstream test CA"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("tlstest: create CA cert: %v", err)
	}

	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("tlstest: parse CA cert: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(ca)

	certs := &Certs{Pool: pool, CA: ca, caKey: caKey}
	certs.Server = certs.Issue(t, "localhost", "127.0.0.1", "::1")
	certs.Leaf = certs.Server.Leaf

	return certs
}

// Issue signs a new server certificate with the CA, valid for hosts. Hosts
// that parse as IPs become IP SANs, the rest DNS names.
func (c *Certs) Issue(t testing.TB, hosts ...string) tls.Certificate {
	t.Helper()

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("tlstest: generate leaf key: %v", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("tlstest: serial: %v", err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"httpstream test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			leafTemplate.IPAddresses = append(leafTemplate.IPAddresses, ip)
			continue
		}
		leafTemplate.DNSNames = append(leafTemplate.DNSNames, h)
	}
	if len(leafTemplate.DNSNames) > 0 {
		leafTemplate.Subject.CommonName = leafTemplate.DNSNames[0]
	}

	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, c.CA, &leafKey.PublicKey, c.caKey)
	if err != nil {
		t.Fatalf("tlstest: create leaf cert: %v", err)
	}

	leaf, err := x509.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("tlstest: parse leaf cert: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{leafDER},
		PrivateKey:  leafKey,
		Leaf:        leaf,
	}
}

// NewServer starts a TLS httptest server presenting the generated leaf.
// It is closed on test cleanup.
func NewServer(t testing.TB, certs *Certs, h http.Handler) *httptest.Server {
	t.Helper()

	return NewServerWithCert(t, certs.Server, h)
}

// NewServerWithCert starts a TLS httptest server presenting cert.
func NewServerWithCert(t testing.TB, cert tls.Certificate, h http.Handler) *httptest.Server {
	t.Helper()

	srv := httptest.NewUnstartedServer(h)
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{cert}}
	srv.Config.ErrorLog = log.New(io.Discard, "", 0)
	srv.StartTLS()
	t.Cleanup(srv.Close)

	return srv
}
