package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Sign signs data with the private key and returns a hex-encoded signature.
func Sign(priv PrivateKey, data []byte) string {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	return hex.EncodeToString(sig)
}

// Verify checks a hex-encoded signature against data using the public key.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// SignRaw signs data and returns the raw 64-byte ed25519 signature, used for
// the fixed-width block and vote wire formats (spec §6.1/§6.2).
func SignRaw(priv PrivateKey, data []byte) [64]byte {
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	var out [64]byte
	copy(out[:], sig)
	return out
}

// VerifyRaw checks a raw 64-byte ed25519 signature against data.
func VerifyRaw(pub PublicKey, data []byte, sig [64]byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key length %d", len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig[:]) {
		return errors.New("signature verification failed")
	}
	return nil
}
