package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/grovesocial/grove/util"
)

func signedTestRequest(t *testing.T, keys *util.RsaKeyPair, keyId string, body []byte) *http.Request {
	t.Helper()

	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequest("POST", "https://grove.example/u/alice/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	privateKey, err := ParsePrivateKey(keys.Private)
	if err != nil {
		t.Fatalf("Failed to parse private key: %v", err)
	}
	if err := SignRequest(req, privateKey, keyId); err != nil {
		t.Fatalf("Failed to sign request: %v", err)
	}
	return req
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	keys := util.GeneratePemKeypair()
	keyId := "https://remote.example/u/bob#main-key"
	req := signedTestRequest(t, keys, keyId, []byte(`{"type":"Like"}`))

	actorURI, err := VerifyRequest(req, keys.Public)
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}
	if actorURI != "https://remote.example/u/bob" {
		t.Errorf("Expected actor URI without fragment, got %s", actorURI)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	keys := util.GeneratePemKeypair()
	otherKeys := util.GeneratePemKeypair()
	req := signedTestRequest(t, keys, "https://remote.example/u/bob#main-key", []byte(`{}`))

	if _, err := VerifyRequest(req, otherKeys.Public); err == nil {
		t.Error("Expected verification failure with the wrong public key")
	}
}

func TestSignatureKeyOwner(t *testing.T) {
	keys := util.GeneratePemKeypair()
	req := signedTestRequest(t, keys, "https://remote.example/u/bob#main-key", []byte(`{}`))

	owner, err := SignatureKeyOwner(req)
	if err != nil {
		t.Fatalf("SignatureKeyOwner failed: %v", err)
	}
	if owner != "https://remote.example/u/bob" {
		t.Errorf("Expected key owner https://remote.example/u/bob, got %s", owner)
	}
}

func TestParsePrivateKeyRejectsGarbage(t *testing.T) {
	if _, err := ParsePrivateKey("not a pem"); err == nil {
		t.Error("Expected error for invalid PEM")
	}
	if _, err := ParsePublicKey("not a pem"); err == nil {
		t.Error("Expected error for invalid PEM")
	}
}
