// Package wallet implements the keystore, action queue, and signed-block
// builders of spec §4.8. Key material is persisted encrypted; the
// in-memory wallet_key is held split across XOR-combined buffers (see
// fan.go) rather than as one contiguous secret.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tolelom/latticenode/core"
	"github.com/tolelom/latticenode/crypto"
)

// KeyKind distinguishes the three kinds of entry a wallet can hold
// (spec §4.8).
type KeyKind uint8

const (
	KindAdHoc KeyKind = iota
	KindDeterministic
	KindWatchOnly
)

// ErrWrongPassword is returned when attempt_password's check fails.
var ErrWrongPassword = errors.New("wallet: wrong password or corrupted keystore")

type keyRecord struct {
	Kind       KeyKind `json:"kind"`
	CipherText []byte  `json:"cipher_text,omitempty"` // empty for watch-only
	Index      uint32  `json:"index,omitempty"`       // meaningful for deterministic
}

// file is the on-disk representation of a Store (spec §4.8 "persisted
// slots"), modeled on the teacher's single-key keystoreFile but widened
// to the full slot set.
type file struct {
	Version            int                       `json:"version"`
	Salt               []byte                    `json:"salt"`
	WalletKeyCipher     []byte                   `json:"wallet_key_cipher"`
	WalletKeyNonce      []byte                   `json:"wallet_key_nonce"`
	Check              []byte                    `json:"check"`
	CheckNonce         []byte                    `json:"check_nonce"`
	Representative     core.Account              `json:"representative"`
	SeedCipher         []byte                    `json:"seed_cipher"`
	SeedNonce          []byte                    `json:"seed_nonce"`
	DeterministicIndex uint32                    `json:"deterministic_index"`
	Keys               map[string]keyRecord      `json:"keys"` // hex(account) -> record
}

const storeVersion = 1

// Store is one wallet's encrypted key store (spec §4.8).
type Store struct {
	mu   sync.Mutex
	path string

	salt           []byte
	walletKeyFan   *fan // decrypted AES-256 key for Keys[*].CipherText and seed
	check          []byte
	checkNonce     []byte
	representative core.Account
	seed           []byte
	detIndex       uint32
	keys           map[core.Account]keyRecord
}

// Create initializes a brand-new wallet encrypted under password and
// writes it to path.
func Create(path, password string) (*Store, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	walletKey := make([]byte, 32)
	if _, err := rand.Read(walletKey); err != nil {
		return nil, err
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	fanned, err := newFan(walletKey)
	if err != nil {
		return nil, err
	}
	s := &Store{
		path:         path,
		salt:         salt,
		walletKeyFan: fanned,
		seed:         seed,
		keys:         make(map[core.Account]keyRecord),
	}
	if err := s.computeCheckLocked(walletKey); err != nil {
		return nil, err
	}
	if err := s.saveLocked(password); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and decrypts the wallet at path using password, verifying
// the check slot (spec §4.8 attempt_password).
func Load(path, password string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	derived := crypto.DeriveWalletKey(password, f.Salt)
	walletKey, err := aesGCMOpen(derived, f.WalletKeyNonce, f.WalletKeyCipher)
	if err != nil {
		return nil, ErrWrongPassword
	}
	zero, err := aesGCMOpen(walletKey, f.CheckNonce, f.Check)
	if err != nil || len(zero) != 0 {
		return nil, ErrWrongPassword
	}
	seed, err := aesGCMOpen(walletKey, f.SeedNonce, f.SeedCipher)
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypt seed: %w", err)
	}
	fanned, err := newFan(walletKey)
	if err != nil {
		return nil, err
	}
	keys := make(map[core.Account]keyRecord, len(f.Keys))
	for hexAcct, rec := range f.Keys {
		acct, err := core.AccountFromHex(hexAcct)
		if err != nil {
			continue
		}
		keys[acct] = rec
	}
	return &Store{
		path:           path,
		salt:           f.Salt,
		walletKeyFan:   fanned,
		check:          f.Check,
		checkNonce:     f.CheckNonce,
		representative: f.Representative,
		seed:           seed,
		detIndex:       f.DeterministicIndex,
		keys:           keys,
	}, nil
}

// AttemptPassword reports whether password decrypts this wallet's
// on-disk wallet_key and reproduces the stored check value, without
// mutating in-memory state (spec §4.8).
func (s *Store) AttemptPassword(password string) bool {
	s.mu.Lock()
	path, checkNonce, check := s.path, s.checkNonce, s.check
	s.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return false
	}
	derived := crypto.DeriveWalletKey(password, f.Salt)
	walletKey, err := aesGCMOpen(derived, f.WalletKeyNonce, f.WalletKeyCipher)
	if err != nil {
		return false
	}
	zero, err := aesGCMOpen(walletKey, checkNonce, check)
	return err == nil && len(zero) == 0
}

// Rekey re-encrypts wallet_key under newPassword (spec §4.8 rekey).
func (s *Store) Rekey(oldPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	oldDerived := crypto.DeriveWalletKey(oldPassword, f.Salt)
	walletKey, err := aesGCMOpen(oldDerived, f.WalletKeyNonce, f.WalletKeyCipher)
	if err != nil {
		return ErrWrongPassword
	}
	return s.saveWithWalletKeyLocked(newPassword, walletKey)
}

// Representative returns the wallet's default representative.
func (s *Store) Representative() core.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.representative
}

// SetRepresentative updates the wallet's default representative and
// persists it under password.
func (s *Store) SetRepresentative(password string, rep core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.representative = rep
	return s.saveLocked(password)
}

// InsertAdHoc stores a non-deterministic private key, encrypted under
// wallet_key with an IV derived from its public key (spec §4.8).
func (s *Store) InsertAdHoc(password string, priv crypto.PrivateKey) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pub := priv.Public()
	acct := core.AccountFromPublicKey(pub)
	iv := ivFromPublicKey(pub)
	ct, err := aesGCMSealWithNonce(s.walletKeyFan.value(), iv, priv)
	if err != nil {
		return acct, err
	}
	s.keys[acct] = keyRecord{Kind: KindAdHoc, CipherText: ct}
	return acct, s.saveLocked(password)
}

// InsertDeterministic derives the next deterministic key from the wallet
// seed (BLAKE2b(seed || index_be32)) and records its index marker
// (spec §4.8).
func (s *Store) InsertDeterministic(password string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.detIndex
	priv := crypto.DeterministicSeedKey(s.seed, index)
	acct := core.AccountFromPublicKey(priv.Public())
	s.keys[acct] = keyRecord{Kind: KindDeterministic, Index: index}
	s.detIndex++
	return acct, s.saveLocked(password)
}

// InsertWatchOnly records an account with no private key material: the
// ciphertext slot is left empty (spec §4.8).
func (s *Store) InsertWatchOnly(password string, acct core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[acct] = keyRecord{Kind: KindWatchOnly}
	return s.saveLocked(password)
}

// PrivateKey returns the decrypted private key for acct, or an error if
// acct is watch-only or unknown.
func (s *Store) PrivateKey(acct core.Account) (crypto.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[acct]
	if !ok {
		return nil, fmt.Errorf("wallet: unknown account %s", acct)
	}
	switch rec.Kind {
	case KindDeterministic:
		return crypto.DeterministicSeedKey(s.seed, rec.Index), nil
	case KindWatchOnly:
		return nil, fmt.Errorf("wallet: account %s is watch-only", acct)
	default:
		iv := ivFromPublicKey(acct.PublicKey())
		return aesGCMOpen(s.walletKeyFan.value(), iv, rec.CipherText)
	}
}

// Accounts lists every account this wallet knows, in no particular order.
func (s *Store) Accounts() []core.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Account, 0, len(s.keys))
	for a := range s.keys {
		out = append(out, a)
	}
	return out
}

// MoveFrom transfers the named accounts' key records from src into s,
// removing them from src (supplemented feature, original source
// wallet_store::move).
func (s *Store) MoveFrom(src *Store, password string, accounts []core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src.mu.Lock()
	defer src.mu.Unlock()
	for _, a := range accounts {
		rec, ok := src.keys[a]
		if !ok {
			continue
		}
		if rec.Kind == KindAdHoc {
			priv, err := srcDecryptLocked(src, a, rec)
			if err != nil {
				return err
			}
			iv := ivFromPublicKey(priv.Public())
			ct, err := aesGCMSealWithNonce(s.walletKeyFan.value(), iv, priv)
			if err != nil {
				return err
			}
			rec.CipherText = ct
		}
		s.keys[a] = rec
		delete(src.keys, a)
	}
	if err := src.saveLocked(password); err != nil {
		return err
	}
	return s.saveLocked(password)
}

// ImportFrom copies (without removing) src's accounts into s (supplemented
// feature, original source wallet_store::import).
func (s *Store) ImportFrom(src *Store, password string, accounts []core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src.mu.Lock()
	defer src.mu.Unlock()
	for _, a := range accounts {
		rec, ok := src.keys[a]
		if !ok {
			continue
		}
		if rec.Kind == KindAdHoc {
			priv, err := srcDecryptLocked(src, a, rec)
			if err != nil {
				return err
			}
			iv := ivFromPublicKey(priv.Public())
			ct, err := aesGCMSealWithNonce(s.walletKeyFan.value(), iv, priv)
			if err != nil {
				return err
			}
			rec.CipherText = ct
		}
		s.keys[a] = rec
	}
	return s.saveLocked(password)
}

func srcDecryptLocked(src *Store, acct core.Account, rec keyRecord) (crypto.PrivateKey, error) {
	switch rec.Kind {
	case KindDeterministic:
		return crypto.DeterministicSeedKey(src.seed, rec.Index), nil
	default:
		iv := ivFromPublicKey(acct.PublicKey())
		return aesGCMOpen(src.walletKeyFan.value(), iv, rec.CipherText)
	}
}

func (s *Store) computeCheckLocked(walletKey []byte) error {
	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ct, err := aesGCMSealWithNonce(walletKey, nonce, nil)
	if err != nil {
		return err
	}
	s.check = ct
	s.checkNonce = nonce
	return nil
}

func (s *Store) saveLocked(password string) error {
	return s.saveWithWalletKeyLocked(password, s.walletKeyFan.value())
}

func (s *Store) saveWithWalletKeyLocked(password string, walletKey []byte) error {
	derived := crypto.DeriveWalletKey(password, s.salt)
	wkNonce := make([]byte, 12)
	if _, err := rand.Read(wkNonce); err != nil {
		return err
	}
	wkCipher, err := aesGCMSealWithNonce(derived, wkNonce, walletKey)
	if err != nil {
		return err
	}
	seedNonce := make([]byte, 12)
	if _, err := rand.Read(seedNonce); err != nil {
		return err
	}
	seedCipher, err := aesGCMSealWithNonce(walletKey, seedNonce, s.seed)
	if err != nil {
		return err
	}

	keys := make(map[string]keyRecord, len(s.keys))
	for a, rec := range s.keys {
		keys[a.String()] = rec
	}

	f := file{
		Version:            storeVersion,
		Salt:               s.salt,
		WalletKeyCipher:    wkCipher,
		WalletKeyNonce:     wkNonce,
		Check:              s.check,
		CheckNonce:         s.checkNonce,
		Representative:     s.representative,
		SeedCipher:         seedCipher,
		SeedNonce:          seedNonce,
		DeterministicIndex: s.detIndex,
		Keys:               keys,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return err
	}
	fanned, err := newFan(walletKey)
	if err != nil {
		return err
	}
	s.walletKeyFan = fanned
	return nil
}

func ivFromPublicKey(pub crypto.PublicKey) []byte {
	digest := crypto.HashBytes(pub)
	return digest[:12]
}

func aesGCMSealWithNonce(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func aesGCMOpen(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
