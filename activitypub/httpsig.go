package activitypub

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrDigestMismatch   = errors.New("digest mismatch")
	ErrStaleDate        = errors.New("date outside accepted window")
)

// DateWindow is how far a signed Date header may drift from our clock.
const DateWindow = 12 * time.Hour

var (
	getHeaders  = []string{httpsig.RequestTarget, "host", "date"}
	postHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}
)

// SignRequest signs an outgoing HTTP request with the given private key.
// A non-nil body also gets a Digest header which is included in the
// signature.
// keyId format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Host == "" {
		req.Host = req.URL.Host
	}
	req.Header.Set("Host", req.Host)

	headers := getHeaders
	if body != nil {
		headers = postHeaders
	}

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	return signer.SignRequest(privateKey, keyId, req, body)
}

// SignatureKeyId returns the keyId named in the request's signature
// without verifying anything.
func SignatureKeyId(sig SignedRequestContext) (string, error) {
	if sig.Signature == "" && sig.Header("authorization") == "" {
		return "", ErrMissingSignature
	}
	verifier, err := httpsig.NewVerifier(sig.Request())
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}
	return verifier.KeyId(), nil
}

// VerifySignature checks the signature captured in sig against the given
// public key and returns the keyId it was made with.
func VerifySignature(sig SignedRequestContext, publicKeyPem string) (string, error) {
	verifier, err := httpsig.NewVerifier(sig.Request())
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	rsaPubKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify(rsaPubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	return verifier.KeyId(), nil
}

// SignedHeaders lists the headers named in the signature's headers
// parameter. An absent parameter means only "date".
func SignedHeaders(sig SignedRequestContext) []string {
	value := sig.Signature
	if value == "" {
		value = strings.TrimPrefix(sig.Header("authorization"), "Signature ")
	}
	for _, part := range strings.Split(value, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.ToLower(k) != "headers" {
			continue
		}
		return strings.Fields(strings.ToLower(strings.Trim(v, `"`)))
	}
	return []string{"date"}
}

// VerifyDigest compares a "SHA-256=<base64>" Digest header with body.
func VerifyDigest(digestHeader string, body []byte) error {
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])

	for _, part := range strings.Split(digestHeader, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(algo, "SHA-256") {
			continue
		}
		if value == want {
			return nil
		}
		return ErrDigestMismatch
	}
	return fmt.Errorf("%w: no SHA-256 digest", ErrDigestMismatch)
}

// CheckDate rejects Date headers further than window from now.
func CheckDate(dateHeader string, now time.Time, window time.Duration) error {
	date, err := http.ParseTime(dateHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStaleDate, err)
	}
	if date.Before(now.Add(-window)) || date.After(now.Add(window)) {
		return ErrStaleDate
	}
	return nil
}

// ParsePublicKey converts PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// some servers publish PKCS#1 keys
		rsaKey, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return rsaKey, nil
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}

	return rsaPubKey, nil
}
