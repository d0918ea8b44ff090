package common

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
)

func TestMakeRandHexString(t *testing.T) {
	for _, n := range []int{0, 1, 16, 32} {
		s, err := MakeRandHexString(n)
		if err != nil {
			t.Fatalf("MakeRandHexString(%d): %v", n, err)
		}
		if len(s) != 2*n {
			t.Fatalf("MakeRandHexString(%d) length = %d, want %d", n, len(s), 2*n)
		}
		if _, err := hex.DecodeString(s); err != nil {
			t.Fatalf("MakeRandHexString(%d) = %q is not hex: %v", n, s, err)
		}
	}
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(32)
	b := GenerateRandByteArray(32)
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("unexpected lengths %d and %d", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two 32-byte random values are equal")
	}
}

func TestWipeByteArray(t *testing.T) {
	key := GenerateRandByteArray(16)
	WipeByteArray(key)
	if !bytes.Equal(key, make([]byte, 16)) {
		t.Fatalf("key not wiped: %x", key)
	}

	WipeByteArray(nil)
}

func TestErrMalformedResponse_IsTransferFailed(t *testing.T) {
	wrapped := fmt.Errorf("task x/file/0: %w", ErrMalformedResponse)
	if !errors.Is(wrapped, ErrMalformedResponse) {
		t.Fatalf("expected wrapped error to match ErrMalformedResponse")
	}
	if !errors.Is(wrapped, ErrTransferFailed) {
		t.Fatalf("malformed response must also count as a transfer failure")
	}
	if errors.Is(ErrTransferFailed, ErrMalformedResponse) {
		t.Fatalf("a plain transfer failure is not a malformed response")
	}
}
