// Package signer embeds enveloped XMLDSig signatures in payroll documents
// using an organization-owned PKCS#12 certificate.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"

	dErrors "nomina/pkg/domain-errors"
)

// XMLDSig algorithm identifiers declared inside SignedInfo.
const (
	dsNamespace        = "http://www.w3.org/2000/09/xmldsig#"
	algC14N            = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	algRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	algSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	transformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Engine signs and verifies payroll XML documents. The certificate bundle is
// loaded from disk on first use and cached for the lifetime of the engine;
// one engine serves one organization certificate.
type Engine struct {
	path     string
	password string

	mu     sync.Mutex
	bundle *Bundle
}

// NewEngine creates an engine for a PKCS#12 file. The bundle is not touched
// until the first Sign/Verify/Info call, so constructing an engine for an
// organization without a certificate configured is cheap and error-free.
func NewEngine(certPath, password string) *Engine {
	return &Engine{path: certPath, password: password}
}

// NewEngineWithBundle creates an engine around an already-decrypted bundle.
// Used by tests and by callers that keep the container out of the filesystem.
func NewEngineWithBundle(bundle *Bundle) *Engine {
	return &Engine{bundle: bundle}
}

func (e *Engine) loadedBundle() (*Bundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bundle != nil {
		return e.bundle, nil
	}
	bundle, err := LoadBundle(e.path, e.password)
	if err != nil {
		return nil, err
	}
	e.bundle = bundle
	return bundle, nil
}

// Info returns certificate metadata, loading the bundle if necessary.
func (e *Engine) Info(now time.Time) (Info, error) {
	bundle, err := e.loadedBundle()
	if err != nil {
		return Info{}, err
	}
	return bundle.Info(now), nil
}

// Sign produces a new signed document; the input is never mutated.
//
// Enveloped XMLDSig: the SHA-256 digest of the canonical unsigned document
// becomes the Reference DigestValue, SignedInfo is signed with
// RSA PKCS#1 v1.5 + SHA-256, and the Signature element (including the
// certificate DER, base64) is appended as the last child of the root.
func (e *Engine) Sign(xmlUnsigned string) (string, error) {
	bundle, err := e.loadedBundle()
	if err != nil {
		return "", err
	}
	key, err := bundle.rsaKey()
	if err != nil {
		return "", err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlUnsigned); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "parse unsigned document")
	}
	root := doc.Root()
	if root == nil {
		return "", dErrors.New(dErrors.CodeValidation, "unsigned document has no root element")
	}

	digest := sha256.Sum256(canonicalElement(root))

	signature := buildSignatureSkeleton(base64.StdEncoding.EncodeToString(digest[:]))
	signedInfo := signature.SelectElement("ds:SignedInfo")

	signedInfoDigest := sha256.Sum256(canonicalSignedInfo(signedInfo))
	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, signedInfoDigest[:])
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "sign SignedInfo")
	}

	sigValue := signature.CreateElement("ds:SignatureValue")
	sigValue.SetText(base64.StdEncoding.EncodeToString(sigBytes))

	keyInfo := signature.CreateElement("ds:KeyInfo")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	certElem := x509Data.CreateElement("ds:X509Certificate")
	certElem.SetText(base64.StdEncoding.EncodeToString(bundle.cert.Raw))

	root.AddChild(signature)

	doc.Indent(2)
	signed, err := doc.WriteToString()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "serialize signed document")
	}
	return signed, nil
}

// Verify reconstructs the digest and signature independently and compares
// them. It returns a plain boolean so callers can audit signed compliance
// records without failing a request: any malformed input is simply invalid.
func (e *Engine) Verify(xmlSigned string) bool {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlSigned); err != nil {
		return false
	}
	root := doc.Root()
	if root == nil {
		return false
	}

	signature := findChildLocal(root, "Signature")
	if signature == nil {
		return false
	}

	digestValue := textOfLocal(signature, "SignedInfo", "Reference", "DigestValue")
	signatureValue := textOfLocal(signature, "SignatureValue")
	certText := textOfLocal(signature, "KeyInfo", "X509Data", "X509Certificate")
	if digestValue == "" || signatureValue == "" || certText == "" {
		return false
	}

	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certText))
	if err != nil {
		return false
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return false
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}

	// Enveloped transform: digest the document without its Signature.
	root.RemoveChild(signature)
	digest := sha256.Sum256(canonicalElement(root))
	if base64.StdEncoding.EncodeToString(digest[:]) != strings.TrimSpace(digestValue) {
		return false
	}

	signedInfo := findDescendantLocal(signature, "SignedInfo")
	if signedInfo == nil {
		return false
	}
	sigBytes, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureValue))
	if err != nil {
		return false
	}
	signedInfoDigest := sha256.Sum256(canonicalSignedInfo(signedInfo))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, signedInfoDigest[:], sigBytes) == nil
}

// buildSignatureSkeleton creates the ds:Signature element with its SignedInfo
// block populated through DigestValue; SignatureValue and KeyInfo are
// appended by Sign once the SignedInfo bytes are fixed.
func buildSignatureSkeleton(digestB64 string) *etree.Element {
	signature := etree.NewElement("ds:Signature")
	signature.CreateAttr("xmlns:ds", dsNamespace)

	signedInfo := signature.CreateElement("ds:SignedInfo")
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", algC14N)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", algRSASHA256)

	reference := signedInfo.CreateElement("ds:Reference")
	reference.CreateAttr("URI", "")
	transforms := reference.CreateElement("ds:Transforms")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", transformEnveloped)
	reference.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", algSHA256)
	reference.CreateElement("ds:DigestValue").SetText(digestB64)

	return signature
}
