package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPlate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ka01ab1234", "KA01AB1234"},
		{"KA 01 AB 1234", "KA01AB1234"},
		{"ka-01-ab-1234", "KA01AB1234"},
		{"  KA01AB1234  ", "KA01AB1234"},
		{"ka·01*ab/1234", "KA01AB1234"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalPlate(tc.in), "input %q", tc.in)
	}
}

func TestCanonicalPlateEquivalence(t *testing.T) {
	// Reads that differ only in case, spacing or punctuation canonicalize
	// to the same key.
	variants := []string{"KA01AB1234", "ka01ab1234", "KA 01-AB 1234", "Ka01.Ab1234"}
	want := CanonicalPlate(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, want, CanonicalPlate(v))
	}
}
