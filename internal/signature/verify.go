package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/ows4444/pluginforge/internal/manifest"
	"github.com/ows4444/pluginforge/internal/trust"
)

// Policy controls whether unsigned bundles are permitted.
type Policy struct {
	RequireSignatures bool
	AllowUnsigned     bool
}

// Result is a signature verification's output shape.
type Result struct {
	IsValid    bool
	TrustLevel trust.Level
	Errors     []string
	Warnings   []string
	Verified   bool
	Algorithm  manifest.SignatureAlgorithm
}

// Verifier checks a bundle's embedded signature against the trusted-issuer
// registry.
type Verifier struct {
	registry *Registry
	policy   Policy
}

// New constructs a Verifier.
func New(registry *Registry, policy Policy) *Verifier {
	return &Verifier{registry: registry, policy: policy}
}

// Verify runs the configured policy against bundle bytes and the
// manifest's optional signature block.
func (v *Verifier) Verify(bundle []byte, sig *manifest.Signature) *Result {
	if sig == nil {
		if v.policy.RequireSignatures && !v.policy.AllowUnsigned {
			return &Result{IsValid: false, Errors: []string{"signature required but bundle is unsigned"}}
		}
		return &Result{IsValid: true, TrustLevel: trust.Untrusted, Warnings: []string{"bundle is unsigned"}}
	}

	if !manifest.SupportedAlgorithms[sig.Algorithm] {
		return &Result{IsValid: false, Algorithm: sig.Algorithm, Errors: []string{fmt.Sprintf("unsupported signature algorithm %q", sig.Algorithm)}}
	}

	trustedKey, trusted := v.registry.Lookup(sig.PublicKey)
	if trusted && trustedKey.ExpiresAt != nil && time.Now().After(*trustedKey.ExpiresAt) {
		return &Result{IsValid: false, Algorithm: sig.Algorithm, Errors: []string{"trusted key has expired"}}
	}

	ok, err := verifySignature(bundle, sig)
	if err != nil {
		return &Result{IsValid: false, Algorithm: sig.Algorithm, Errors: []string{err.Error()}}
	}
	if !ok {
		return &Result{IsValid: false, Algorithm: sig.Algorithm, Errors: []string{"signature does not verify against the submitted public key"}}
	}

	if trusted {
		return &Result{IsValid: true, TrustLevel: trustedKey.TrustLevel, Verified: true, Algorithm: sig.Algorithm}
	}
	return &Result{
		IsValid:    true,
		TrustLevel: trust.Community,
		Verified:   true,
		Algorithm:  sig.Algorithm,
		Warnings:   []string{"signature verifies but the signing key is not in the trusted-issuer registry"},
	}
}

func verifySignature(bundle []byte, sig *manifest.Signature) (bool, error) {
	block, _ := pem.Decode([]byte(sig.PublicKey))
	if block == nil {
		return false, fmt.Errorf("signature: invalid PEM public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false, fmt.Errorf("signature: parse public key: %w", err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return false, fmt.Errorf("signature: decode base64 signature: %w", err)
	}

	switch sig.Algorithm {
	case manifest.AlgRS256:
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("signature: RS256 requires an RSA public key")
		}
		sum := sha256.Sum256(bundle)
		if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, sum[:], sigBytes); err != nil {
			return false, nil
		}
		return true, nil
	case manifest.AlgRS512:
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("signature: RS512 requires an RSA public key")
		}
		sum := sha512.Sum512(bundle)
		if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA512, sum[:], sigBytes); err != nil {
			return false, nil
		}
		return true, nil
	case manifest.AlgES256:
		ecKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("signature: ES256 requires an ECDSA public key")
		}
		sum := sha256.Sum256(bundle)
		return ecdsa.VerifyASN1(ecKey, sum[:], sigBytes), nil
	case manifest.AlgES512:
		ecKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return false, fmt.Errorf("signature: ES512 requires an ECDSA public key")
		}
		sum := sha512.Sum512(bundle)
		return ecdsa.VerifyASN1(ecKey, sum[:], sigBytes), nil
	default:
		return false, fmt.Errorf("signature: unsupported algorithm %q", sig.Algorithm)
	}
}
