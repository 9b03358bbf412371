package delivery

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Signer is satisfied by keystore.Store; kept narrow so tests can stub
// it without pulling in RSA key material.
type Signer interface {
	Sign(data []byte) ([]byte, error)
}

// signRequest attaches Digest, Date and Signature headers per
// SPEC_FULL.md section 4.8's HTTP Signatures contract: keyId=<sender>
// #main-key, algorithm=rsa-sha256, covering (request-target) host date
// digest. There is no HTTP Signatures library in the example corpus, so
// this is hand-rolled directly over crypto/rsa via the signer — the one
// deliberate standard-library component of the delivery engine.
func signRequest(req *http.Request, body []byte, keyID string, s Signer) error {
	digest := sha256.Sum256(body)
	req.Header.Set("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(digest[:]))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	requestTarget := strings.ToLower(req.Method) + " " + req.URL.RequestURI()
	signingString := fmt.Sprintf(
		"(request-target): %s\nhost: %s\ndate: %s\ndigest: %s",
		requestTarget, req.Header.Get("Host"), req.Header.Get("Date"), req.Header.Get("Digest"),
	)

	sig, err := s.Sign([]byte(signingString))
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}

	req.Header.Set("Signature", fmt.Sprintf(
		`keyId="%s",algorithm="rsa-sha256",headers="(request-target) host date digest",signature="%s"`,
		keyID, base64.StdEncoding.EncodeToString(sig),
	))
	return nil
}
