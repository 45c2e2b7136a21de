// Package sealed encrypts provisioned secrets to operator age recipients so an
// escrow copy can leave the host without exposing the plaintext.
//
// Output is ASCII-armored age, suitable for committing next to the deployment
// or uploading to the artifact mirror.
package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Extension is appended to a secret path to name its sealed copy.
const Extension = ".age"

var ErrNoRecipients = errors.New("at least one recipient is required")

// Seal encrypts plaintext to every age X25519 public key in recipientKeys.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	var out bytes.Buffer
	armorWriter := armor.NewWriter(&out)
	writer, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return out.Bytes(), nil
}

// Open decrypts armored ciphertext with an AGE-SECRET-KEY-1... identity.
func Open(ciphertext []byte, identity string) ([]byte, error) {
	parsed, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}
