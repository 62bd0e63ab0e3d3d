// Package cursor encodes and decodes opaque pagination cursors.
//
// A cursor carries the 1-based position of a row within an ordered result.
// Two encodings are accepted when decoding: a plain positive base-10 integer
// (legacy clients) and the tagged form produced by Encode, which is the
// unpadded URL-safe base64 of "sm:<id>".
package cursor

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// tag prefixes every encoded cursor payload.
const tag = "sm:"

// Encode returns the opaque cursor for a row position.
//
// Parameters:
//   - id (int): non-negative row position
//
// Returns:
//   - string: unpadded URL-safe base64 of "sm:<id>"
func Encode(id int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(tag + strconv.Itoa(id)))
}

// Decode returns the row position carried by a cursor.
// Malformed cursors decode to 0 so a corrupted cursor restarts pagination
// from the first page instead of failing the request.
//
// Parameters:
//   - c (string): cursor as received from a client
//
// Returns:
//   - int: decoded position, 0 when the cursor cannot be decoded
func Decode(c string) int {
	if n, ok := leadingInt(c); ok && n > 0 {
		return n
	}

	raw, ok := decodeBase64(c)
	if !ok || len(raw) < len(tag) {
		return 0
	}

	n, ok := leadingInt(string(raw[len(tag):]))
	if !ok {
		return 0
	}
	return n
}

// leadingInt parses the integer prefix of s the way loosely typed clients
// do: leading whitespace and a sign are allowed, trailing garbage is ignored.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// decodeBase64 accepts both alphabets with or without padding.
func decodeBase64(s string) ([]byte, bool) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if len(s)%4 == 1 {
		// a single dangling sextet carries no full byte
		s = s[:len(s)-1]
	}

	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return raw, true
}
