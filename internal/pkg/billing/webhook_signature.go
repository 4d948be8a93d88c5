package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyWebhookSignature checks the shared-secret HMAC signature on a webhook
// delivery. Without a configured secret verification is disabled and every
// delivery passes; with one, a missing or malformed signature fails.
// Deployments configured before the SHA-512 rollout still send SHA-256, so
// both are accepted.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return true
	}
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	if verifyHMAC(payload, decodedSig, []byte(secret), sha256.New) {
		return true
	}
	return verifyHMAC(payload, decodedSig, []byte(secret), sha512.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
