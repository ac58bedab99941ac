// Package b64x is the single base64url codec used for credential ids, public
// keys and challenges. Values are unpadded on output; padded input is
// accepted because some clients still emit it.
package b64x

import (
	"encoding/base64"
	"strings"
)

// Encode returns the unpadded base64url form of b.
func Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses unpadded or padded base64url text.
func Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// EncodeAll encodes every element of bs.
func EncodeAll(bs [][]byte) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, Encode(b))
	}
	return out
}

// DecodeAll decodes every element of ss and stops at the first error.
func DecodeAll(ss []string) ([][]byte, error) {
	out := make([][]byte, 0, len(ss))
	for _, s := range ss {
		b, err := Decode(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
