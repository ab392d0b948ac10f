package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(salt1), saltSize)
	}
	salt2, _ := GenerateSalt()
	if bytes.Equal(salt1, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")
	if !bytes.Equal(DeriveKey("walnut", salt), DeriveKey("walnut", salt)) {
		t.Error("same passphrase and salt should produce the same key")
	}
	if bytes.Equal(DeriveKey("walnut", salt), DeriveKey("pecan", salt)) {
		t.Error("different passphrases should produce different keys")
	}
	if n := len(DeriveKey("walnut", salt)); n != keySize {
		t.Errorf("key length = %d, want %d", n, keySize)
	}
}

func TestSealOpen(t *testing.T) {
	plain := []byte("SQLite format 3\x00 households and weeks")

	sealed, err := Seal(plain, "correct horse")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("sealed archive contains the plaintext")
	}
	again, _ := Seal(plain, "correct horse")
	if bytes.Equal(sealed[:saltSize], again[:saltSize]) {
		t.Error("each seal should use a fresh salt")
	}

	got, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("open = %q, want %q", got, plain)
	}
}

func TestOpenRejects(t *testing.T) {
	sealed, err := Seal([]byte("data"), "right")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name       string
		data       []byte
		passphrase string
	}{
		{"wrong passphrase", sealed, "wrong"},
		{"tampered", tampered, "right"},
		{"too small", []byte("short"), "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.data, tt.passphrase); !errors.Is(err, ErrBadPassphrase) {
				t.Errorf("err = %v, want ErrBadPassphrase", err)
			}
		})
	}
}

func TestSealEmpty(t *testing.T) {
	sealed, err := Seal(nil, "p")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := Open(sealed, "p")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
