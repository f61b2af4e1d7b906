package shared

import (
	"bytes"
	"testing"
)

func TestGenerateRandByteArray_Basic(t *testing.T) {
	b, err := GenerateRandByteArray(16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(b))
	}
}

func TestGenerateRandByteArray_ZeroSize(t *testing.T) {
	b, err := GenerateRandByteArray(0)
	if err != nil {
		t.Fatalf("unexpected error for size=0: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty slice, got %d bytes", len(b))
	}
}

func TestGenerateRandByteArray_EntropyHint(t *testing.T) {
	a, _ := GenerateRandByteArray(32)
	b, _ := GenerateRandByteArray(32)
	if bytes.Equal(a, b) {
		t.Fatalf("two 32-byte draws must not collide")
	}
}

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	b := []byte("super-secret")
	WipeByteArray(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped: %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}
