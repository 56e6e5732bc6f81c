package database

import "testing"

func TestSplitName(t *testing.T) {
	tests := []struct{ in, first, last string }{
		{"Administrador Sistema", "Administrador", "Sistema"},
		{"  Ana María  López ", "Ana", "María  López"},
		{"Root", "Root", ""},
		{"", "", ""},
	}
	for _, tc := range tests {
		first, last := splitName(tc.in)
		if first != tc.first || last != tc.last {
			t.Errorf("splitName(%q) = %q, %q", tc.in, first, last)
		}
	}
}
