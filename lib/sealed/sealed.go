// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// Recipient and Identity are the age key types. Aliased so callers
// import only lib/sealed.
type (
	Recipient = age.Recipient
	Identity  = age.Identity
)

// ErrNoMatchingIdentity is returned by Decrypt when none of the
// supplied identities can open the stream.
var ErrNoMatchingIdentity = errors.New("no identity matches the sealed volume's recipients")

// Keypair is an age X25519 keypair in its text forms.
type Keypair struct {
	// PrivateKey is AGE-SECRET-KEY-1... and belongs in an identity
	// file, never on a command line.
	PrivateKey string
	// PublicKey is age1... and is safe to publish.
	PublicKey string
}

// GenerateKeypair generates a new X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	return &Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// IdentityFile renders the keypair in age's identity file format.
func (k *Keypair) IdentityFile() string {
	return "# public key: " + k.PublicKey + "\n" + k.PrivateKey + "\n"
}

// ParseRecipients parses age1... public keys.
func ParseRecipients(keys []string) ([]Recipient, error) {
	recipients := make([]Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// ReadRecipientsFile returns the public keys listed in path, one per
// line. Blank lines and lines starting with '#' are skipped.
func ReadRecipientsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recipients file: %w", err)
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading recipients file %s: %w", path, err)
	}
	return keys, nil
}

// LoadIdentityFile parses an age identity file (the format written by
// keygen: comments plus AGE-SECRET-KEY-1... lines).
func LoadIdentityFile(path string) ([]Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

// Encrypt returns a writer that seals everything written to it for
// recipients. Close must be called to flush the final chunk; it does
// not close destination.
func Encrypt(destination io.Writer, recipients []Recipient) (io.WriteCloser, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	writer, err := age.Encrypt(destination, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	return writer, nil
}

// Decrypt returns a reader yielding the plaintext of a sealed stream.
// Authentication failures surface from Read as the stream is
// consumed, so a tampered payload is detected on the chunk where the
// tampering happened.
func Decrypt(source io.Reader, identities []Identity) (io.Reader, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("volume is sealed and no identity was supplied")
	}
	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrNoMatchingIdentity
		}
		return nil, fmt.Errorf("opening sealed stream: %w", err)
	}
	return reader, nil
}
