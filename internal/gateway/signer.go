package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// The gateway signs callback payloads with HMAC-SHA256 over a canonical,
// twice percent-encoded parameter string. Both sides must produce the exact
// same bytes, so the encoding below is reproduced character for character
// rather than delegated to url.QueryEscape (which uses "+" for spaces and
// lowercase hex in places).

const upperhex = "0123456789ABCDEF"

// strictEncode percent-encodes s leaving only the RFC 3986 unreserved set
// (ALPHA / DIGIT / "-" / "_" / "." / "~") untouched. This matches the
// gateway's encoder: standard URI component encoding with ! ' ( ) *
// additionally escaped, uppercase hex.
func strictEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}

// canonicalString builds the twice-encoded string the HMAC runs over:
// drop signature fields, strict-encode each key and value, sort pairs by
// encoded key bytes, join as k=v with &, then strict-encode the whole thing
// once more. The double encoding is part of the gateway protocol.
func canonicalString(params map[string]string) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		if k == "signature" || k == "signature_algorithm" {
			continue
		}
		pairs = append(pairs, pair{strictEncode(k), strictEncode(v)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(p.v)
	}
	return strictEncode(b.String())
}

// ComputeSignature returns the strict-encoded base64 HMAC-SHA256 signature
// for params, ready to be carried in a "signature" field.
func ComputeSignature(params map[string]string, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(canonicalString(params)))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return strictEncode(digest)
}

// VerifySignature checks the "signature" field of a callback payload against
// the HMAC computed from the remaining parameters. It fails closed: a
// missing or undecodable signature is a verification failure, never a panic.
// The received signature is percent-decoded exactly once before the
// constant-time comparison with the raw base64 digest.
func VerifySignature(params map[string]string, secretKey string) bool {
	received, ok := params["signature"]
	if !ok || received == "" {
		return false
	}
	// PathUnescape rather than QueryUnescape: base64 digests contain "+",
	// which must survive the decode as-is.
	decoded, err := url.PathUnescape(received)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(canonicalString(params)))
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(computed), []byte(decoded))
}
