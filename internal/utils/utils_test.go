package utils

import (
	"strings"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hashed, err := HashPassword("secreto123")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hashed, "secreto123") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hashed, "otro") {
		t.Fatal("wrong password matched")
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 6 {
		t.Fatalf("len = %d", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  rh-001 "); got != "RH-001" {
		t.Fatalf("got %q", got)
	}
}
