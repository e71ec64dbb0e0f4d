// Package crypto implements the end-to-end encryption used on the sync path.
//
// Clipboard payloads are compressed with zstd (level 3) and then encrypted to
// the user's own age X25519 recipient, so the relay only ever stores
// ciphertext. The user's private key is wrapped with an age scrypt passphrase
// before it leaves the machine. The local identity is kept as the bech32
// "AGE-SECRET-KEY-1..." string in a user-private file.
package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// ErrAuth is returned when a ciphertext cannot be opened with the supplied
// identity or passphrase.
var ErrAuth = errors.New("decryption failed")

// ErrCorrupt is returned when a ciphertext opens but its contents cannot be
// decompressed or parsed.
var ErrCorrupt = errors.New("corrupt payload")

// GenerateKeypair creates a fresh X25519 identity and its public recipient.
func GenerateKeypair() (*age.X25519Identity, *age.X25519Recipient, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, nil, fmt.Errorf("generate identity: %w", err)
	}
	return id, id.Recipient(), nil
}

// PublicKeyBytes returns the recipient's bech32 string form ("age1...") as
// bytes. This is the representation stored remotely.
func PublicKeyBytes(r *age.X25519Recipient) []byte {
	return []byte(r.String())
}

// Encrypt compresses plaintext with zstd and encrypts it to recipients.
// Compression is not optional: Decrypt always decompresses, and the size
// recorded remotely refers to the pre-compression payload.
func Encrypt(plaintext []byte, recipients ...age.Recipient) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(plaintext, nil)
	enc.Close()

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return nil, fmt.Errorf("age write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("age finish: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt opens ciphertext with identity and decompresses the result.
// A ciphertext that was not encrypted to identity yields ErrAuth; one that
// opens but does not decompress yields ErrCorrupt.
func Decrypt(ciphertext []byte, identity age.Identity) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, fmt.Errorf("%w: no matching identity", ErrAuth)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	plaintext, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}

// EncryptWithPassphrase wraps data with an age scrypt recipient. Used only
// for the user's private key bytes stored remotely; the key material is
// high-entropy, so this path does not compress.
func EncryptWithPassphrase(data []byte, passphrase string) ([]byte, error) {
	rec, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("scrypt recipient: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, rec)
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("age write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("age finish: %w", err)
	}
	return buf.Bytes(), nil
}

// DecryptWithPassphrase reverses EncryptWithPassphrase.
func DecryptWithPassphrase(ciphertext []byte, passphrase string) ([]byte, error) {
	id, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return data, nil
}

// StoreIdentity writes the bech32 identity string to path with mode 0600,
// creating the parent directory (0700) if needed.
func StoreIdentity(path string, identity *age.X25519Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// LoadIdentity reads and parses the identity file written by StoreIdentity.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	id, err := age.ParseX25519Identity(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	return id, nil
}
