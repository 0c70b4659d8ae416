package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func samplePayload() map[string]string {
	return map[string]string{
		"order_id":            "ORD1700000000ab12",
		"status":              "CHARGED",
		"amount":              "1000.00",
		"signature_algorithm": "HMAC-SHA256",
	}
}

func signPayload(params map[string]string, key string) map[string]string {
	params["signature"] = ComputeSignature(params, key)
	return params
}

func TestStrictEncode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abcXYZ019", "abcXYZ019"},
		{"-_.~", "-_.~"},
		{"a b", "a%20b"},
		{"!'()*", "%21%27%28%29%2A"},
		{"k=v&k2", "k%3Dv%26k2"},
		{"100.00", "100.00"},
		{"a+b/c", "a%2Bb%2Fc"},
	}
	for _, tc := range cases {
		if got := strictEncode(tc.in); got != tc.want {
			t.Errorf("strictEncode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// The canonical string construction is verified against an independently
// assembled expectation: sorted pairs, single join, double encode.
func TestComputeSignatureKnownVector(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1"}
	const key = "secret"

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strictEncode("a=1&b=2")))
	want := strictEncode(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	if got := ComputeSignature(params, key); got != want {
		t.Fatalf("ComputeSignature = %q, want %q", got, want)
	}
}

func TestComputeSignatureIgnoresSignatureFields(t *testing.T) {
	params := samplePayload()
	base := ComputeSignature(params, "key")

	params["signature"] = "whatever"
	params["signature_algorithm"] = "HMAC-SHA512"
	if got := ComputeSignature(params, "key"); got != base {
		t.Fatalf("signature fields leaked into the canonical string")
	}
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	const key = "response-key"
	params := signPayload(samplePayload(), key)

	if !VerifySignature(params, key) {
		t.Fatal("round-trip verification failed")
	}
}

func TestVerifySignatureWrongKey(t *testing.T) {
	params := signPayload(samplePayload(), "right-key")
	if VerifySignature(params, "wrong-key") {
		t.Fatal("verification succeeded with the wrong key")
	}
}

func TestVerifySignatureTamperedValues(t *testing.T) {
	const key = "response-key"
	for tampered := range samplePayload() {
		params := signPayload(samplePayload(), key)
		params[tampered] = params[tampered] + "x"
		if tampered != "signature" && tampered != "signature_algorithm" && VerifySignature(params, key) {
			t.Errorf("verification passed with tampered %q", tampered)
		}
	}
}

func TestVerifySignatureTamperedSignature(t *testing.T) {
	const key = "response-key"
	params := signPayload(samplePayload(), key)

	sig := []byte(params["signature"])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	params["signature"] = string(sig)

	if VerifySignature(params, key) {
		t.Fatal("verification passed with a tampered signature")
	}
}

func TestVerifySignatureFailsClosed(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]string
	}{
		{"missing signature", samplePayload()},
		{"empty signature", func() map[string]string {
			p := samplePayload()
			p["signature"] = ""
			return p
		}()},
		{"undecodable signature", func() map[string]string {
			p := samplePayload()
			p["signature"] = "%zz"
			return p
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(tc.params, "key") {
				t.Fatal("expected verification failure")
			}
		})
	}
}
