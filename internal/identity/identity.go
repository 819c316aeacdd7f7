// Package identity turns identity-provider user ids into storage keys and back.
//
// ONE ENCODING, EVERYWHERE:
// Provider ids look like "did:privy:cm3x...", "auth|abc123" or "github|1234".
// Those characters are awkward in URLs and query filters, so every id is
// percent-encoded before it is used as a primary or foreign key in
// user_profiles, entries or votes.
//
// The encoding is the one browsers apply with encodeURIComponent, so keys
// written by the web client and by this service agree: every byte outside
// A-Z a-z 0-9 - . _ ~ ! ' ( ) * becomes %XX with uppercase hex.
//
// DOUBLE ENCODING:
// Callers in different layers have disagreed about whether an id is already
// encoded. Encode therefore treats any input that contains '%' and decodes
// cleanly as already encoded: it decodes it and re-encodes it in canonical form.
// As a consequence:
//
//	Encode(Encode(x)) == Encode(x)              for every x
//	Decode(Encode(id)).String() == id           for every id that is not itself
//	                                            a valid percent-encoding
//
// Repositories only accept a Key, which can only be produced here, so the
// compiler keeps raw ids out of the tables.
package identity

import (
	"net/url"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// Key is an encoded identity id, safe to store and to put in a URL.
type Key string

// String returns the encoded form.
func (k Key) String() string { return string(k) }

// Decode returns the display form of the key.
func (k Key) Decode() string { return Decode(string(k)) }

// Encode returns the canonical storage key for a provider id.
func Encode(id string) Key {
	if strings.IndexByte(id, '%') >= 0 {
		if raw, err := url.PathUnescape(id); err == nil {
			id = raw
		}
	}
	return Key(escape(id))
}

// Decode reverses Encode. Input that is not a valid percent-encoding is
// returned unchanged.
func Decode(encoded string) string {
	raw, err := url.PathUnescape(encoded)
	if err != nil {
		return encoded
	}
	return raw
}

func escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	case c == '!', c == '\'', c == '(', c == ')', c == '*':
		return true
	}
	return false
}
