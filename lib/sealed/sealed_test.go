// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func seal(t *testing.T, plaintext []byte, publicKeys ...string) []byte {
	t.Helper()
	recipients, err := ParseRecipients(publicKeys)
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}
	var buffer bytes.Buffer
	writer, err := Encrypt(&buffer, recipients)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func identityFor(t *testing.T, keypair *Keypair) []Identity {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(path, []byte(keypair.IdentityFile()), 0o600); err != nil {
		t.Fatal(err)
	}
	identities, err := LoadIdentityFile(path)
	if err != nil {
		t.Fatalf("LoadIdentityFile: %v", err)
	}
	return identities
}

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	if !strings.HasPrefix(keypair.PrivateKey, "AGE-SECRET-KEY-1") {
		t.Errorf("PrivateKey has wrong prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
	other, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	if other.PublicKey == keypair.PublicKey {
		t.Error("two generated keypairs are identical")
	}
}

func TestSealRoundtripStreaming(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	// Several age chunks.
	plaintext := bytes.Repeat([]byte("volume payload "), 20000)
	ciphertext := seal(t, plaintext, keypair.PublicKey)
	if bytes.Contains(ciphertext, []byte("volume payload")) {
		t.Fatal("ciphertext contains plaintext")
	}

	reader, err := Decrypt(bytes.NewReader(ciphertext), identityFor(t, keypair))
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	decrypted, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("roundtrip mismatch")
	}
}

func TestMultipleRecipients(t *testing.T) {
	first, _ := GenerateKeypair()
	second, _ := GenerateKeypair()
	ciphertext := seal(t, []byte("shared"), first.PublicKey, second.PublicKey)
	for _, keypair := range []*Keypair{first, second} {
		reader, err := Decrypt(bytes.NewReader(ciphertext), identityFor(t, keypair))
		if err != nil {
			t.Fatalf("Decrypt with %s: %v", keypair.PublicKey, err)
		}
		if data, _ := io.ReadAll(reader); string(data) != "shared" {
			t.Errorf("decrypted %q", data)
		}
	}
}

func TestWrongIdentity(t *testing.T) {
	owner, _ := GenerateKeypair()
	stranger, _ := GenerateKeypair()
	ciphertext := seal(t, []byte("private"), owner.PublicKey)
	_, err := Decrypt(bytes.NewReader(ciphertext), identityFor(t, stranger))
	if !errors.Is(err, ErrNoMatchingIdentity) {
		t.Errorf("error = %v, want ErrNoMatchingIdentity", err)
	}
}

func TestTamperDetected(t *testing.T) {
	keypair, _ := GenerateKeypair()
	ciphertext := seal(t, bytes.Repeat([]byte{7}, 1000), keypair.PublicKey)
	ciphertext[len(ciphertext)-5] ^= 0x01
	reader, err := Decrypt(bytes.NewReader(ciphertext), identityFor(t, keypair))
	if err != nil {
		return // header-level rejection is also acceptable
	}
	if _, err := io.ReadAll(reader); err == nil {
		t.Error("tampered payload decrypted without error")
	}
}

func TestEncryptRequiresRecipient(t *testing.T) {
	if _, err := Encrypt(io.Discard, nil); err == nil {
		t.Error("Encrypt with no recipients should fail")
	}
	if _, err := Decrypt(bytes.NewReader(nil), nil); err == nil {
		t.Error("Decrypt with no identities should fail")
	}
}

func TestParseRecipientsRejectsGarbage(t *testing.T) {
	if _, err := ParseRecipients([]string{"age1notakey"}); err == nil {
		t.Error("invalid recipient accepted")
	}
}

func TestReadRecipientsFile(t *testing.T) {
	keypair, _ := GenerateKeypair()
	path := filepath.Join(t.TempDir(), "recipients.txt")
	content := "# operators\n\n" + keypair.PublicKey + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	keys, err := ReadRecipientsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != keypair.PublicKey {
		t.Errorf("keys = %v", keys)
	}
}
