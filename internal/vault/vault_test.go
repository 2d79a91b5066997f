package vault

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	cases := []string{"", "sk-test-123", "ключ с юникодом", string(make([]byte, 4096))}
	v, err := New("correct horse battery staple")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	for _, plaintext := range cases {
		blob, errEnc := v.Encrypt(plaintext)
		if errEnc != nil {
			t.Fatalf("encrypt: %v", errEnc)
		}
		got, errDec := v.Decrypt(blob)
		if errDec != nil {
			t.Fatalf("decrypt: %v", errDec)
		}
		if got != plaintext {
			t.Fatalf("expected %q, got %q", plaintext, got)
		}
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	blob, err := Encrypt("sk-abc", "pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := Decrypt(blob, "pass")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "sk-abc" {
		t.Fatalf("expected sk-abc, got %q", got)
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	v, _ := New("pass")
	first, _ := v.Encrypt("same")
	second, _ := v.Encrypt("same")
	if first == second {
		t.Fatalf("expected different blobs for repeated encryption")
	}
}

func TestBlobFraming(t *testing.T) {
	v, _ := New("pass")
	blob, _ := v.Encrypt("abcd")
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	if len(raw) != NonceSize+4+TagSize {
		t.Fatalf("expected %d bytes, got %d", NonceSize+4+TagSize, len(raw))
	}
	parts, err := Split(blob)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if parts.IV != base64.StdEncoding.EncodeToString(raw[:NonceSize]) {
		t.Fatalf("unexpected iv %q", parts.IV)
	}
	if parts.AuthTag != base64.StdEncoding.EncodeToString(raw[len(raw)-TagSize:]) {
		t.Fatalf("unexpected tag %q", parts.AuthTag)
	}
}

func TestDecrypt_EveryByteFlipFails(t *testing.T) {
	v, _ := New("pass")
	blob, _ := v.Encrypt("sk-live-key")
	raw, _ := base64.StdEncoding.DecodeString(blob)
	for i := range raw {
		tampered := append([]byte(nil), raw...)
		tampered[i] ^= 0x01
		_, err := v.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		if !errors.Is(err, ErrDecryption) {
			t.Fatalf("byte %d: expected ErrDecryption, got %v", i, err)
		}
	}
}

func TestDecrypt_WrongSecret(t *testing.T) {
	blob, _ := Encrypt("sk-live-key", "right")
	if _, err := Decrypt(blob, "wrong"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	v, _ := New("pass")
	short := base64.StdEncoding.EncodeToString(make([]byte, NonceSize+TagSize-1))
	for _, blob := range []string{"", "not base64!!", short} {
		if _, err := v.Decrypt(blob); !errors.Is(err, ErrDecryption) {
			t.Fatalf("blob %q: expected ErrDecryption, got %v", blob, err)
		}
	}
}

func TestNew_EmptySecret(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey("pass")
	b := DeriveKey("pass")
	if len(a) != KeySize {
		t.Fatalf("expected %d byte key, got %d", KeySize, len(a))
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}
	if string(a) == string(DeriveKey("other")) {
		t.Fatalf("expected different keys for different secrets")
	}
}

func TestHint(t *testing.T) {
	if got := Hint("sk-abcdef1234"); got != "…1234" {
		t.Fatalf("unexpected hint %q", got)
	}
	if got := Hint("abc"); got != "•••" {
		t.Fatalf("unexpected short hint %q", got)
	}
}
