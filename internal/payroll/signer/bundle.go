package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"os"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	dErrors "nomina/pkg/domain-errors"
)

// Bundle is a decrypted signing identity: the organization's private key and
// X.509 certificate, extracted from a PKCS#12 container. The decrypted key
// lives only in memory on the engine that loaded it; it is never written back
// to storage or logs.
type Bundle struct {
	key  any
	cert *x509.Certificate
}

// LoadBundle reads and decrypts a PKCS#12 file. A missing file or wrong
// password is a certificate error; callers treat it as hard configuration
// failure, not something recoverable mid-pipeline.
func LoadBundle(path, password string) (*Bundle, error) {
	if path == "" {
		return nil, dErrors.New(dErrors.CodeCertificate, "certificate path is not configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCertificate, "read certificate bundle")
	}
	return DecodeBundle(data, password)
}

// DecodeBundle decrypts PKCS#12 bytes. Split out from LoadBundle so tests
// and callers holding the container in memory can avoid the filesystem.
func DecodeBundle(data []byte, password string) (*Bundle, error) {
	key, cert, _, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCertificate, "decrypt certificate bundle")
	}
	if cert == nil {
		return nil, dErrors.New(dErrors.CodeCertificate, "bundle contains no certificate")
	}
	return &Bundle{key: key, cert: cert}, nil
}

// rsaKey returns the private key, or a signing error when the key type is
// incompatible with RSA-SHA256.
func (b *Bundle) rsaKey() (*rsa.PrivateKey, error) {
	key, ok := b.key.(*rsa.PrivateKey)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeSigning, "private key type %T is not usable with rsa-sha256", b.key)
	}
	return key, nil
}

// Certificate returns the public certificate of the bundle.
func (b *Bundle) Certificate() *x509.Certificate { return b.cert }

// Info summarizes the certificate for operator display.
type Info struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	Expired      bool      `json:"expired"`
}

// Info returns certificate metadata relative to now.
func (b *Bundle) Info(now time.Time) Info {
	return Info{
		Subject:      b.cert.Subject.String(),
		Issuer:       b.cert.Issuer.String(),
		SerialNumber: b.cert.SerialNumber.String(),
		NotBefore:    b.cert.NotBefore,
		NotAfter:     b.cert.NotAfter,
		Expired:      now.After(b.cert.NotAfter),
	}
}
