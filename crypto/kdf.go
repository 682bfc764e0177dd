package crypto

import "golang.org/x/crypto/argon2"

// Argon2id parameters for deriving a wallet_key from a user password.
// Tuned for an interactive unlock (node startup / wallet CLI), not for a
// high-throughput server path.
const (
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 4
	Argon2KeyLen  = 32 // AES-256 key size
)

// DeriveWalletKey derives a 32-byte AES-256 key from password and salt using
// Argon2id, per spec §4.8 ("wallet_key ... itself encrypted under the user
// password via Argon2id").
func DeriveWalletKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)
}
