package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func mustCanonicalizer(t *testing.T, mode Mode) Canonicalizer {
	t.Helper()
	c, err := NewCanonicalizer(mode)
	if err != nil {
		t.Fatalf("new canonicalizer: %v", err)
	}
	return c
}

func TestCanonicalize_KeyOrderAndWhitespace(t *testing.T) {
	for _, mode := range []Mode{ModeJCS, ModeSorted} {
		t.Run(string(mode), func(t *testing.T) {
			c := mustCanonicalizer(t, mode)
			a, err := c.Canonicalize([]byte(`{"b": [1, 2, {"z": true, "y": null}], "a": "x"}`))
			if err != nil {
				t.Fatalf("canonicalize a: %v", err)
			}
			b, err := c.Canonicalize([]byte("{\n  \"a\":\"x\",\"b\":[1,2,{\"y\":null,\"z\":true}]}"))
			if err != nil {
				t.Fatalf("canonicalize b: %v", err)
			}
			want := `{"a":"x","b":[1,2,{"y":null,"z":true}]}`
			if string(a) != want || string(b) != want {
				t.Fatalf("expected %s, got %s and %s", want, a, b)
			}
		})
	}
}

func TestCanonicalize_NumberForms(t *testing.T) {
	input := []byte(`{"n":1.0,"e":1e3,"s":"é<"}`)

	strict, err := mustCanonicalizer(t, ModeJCS).Canonicalize(input)
	if err != nil {
		t.Fatalf("jcs: %v", err)
	}
	if string(strict) != `{"e":1000,"n":1,"s":"é<"}` {
		t.Fatalf("unexpected jcs output %s", strict)
	}

	sorted, err := mustCanonicalizer(t, ModeSorted).Canonicalize(input)
	if err != nil {
		t.Fatalf("sorted: %v", err)
	}
	if string(sorted) != `{"e":1e3,"n":1.0,"s":"é<"}` {
		t.Fatalf("unexpected sorted output %s", sorted)
	}
}

func TestCanonicalize_RejectsTrailingData(t *testing.T) {
	if _, err := mustCanonicalizer(t, ModeSorted).Canonicalize([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
	if _, err := mustCanonicalizer(t, ModeJCS).Canonicalize([]byte(`{"a":`)); err == nil {
		t.Fatal("expected malformed JSON error")
	}
}

func TestNewCanonicalizer_UnknownMode(t *testing.T) {
	if _, err := NewCanonicalizer("pretty"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestCID_MatchesDefinition(t *testing.T) {
	c := mustCanonicalizer(t, ModeJCS)
	got, err := CID(c, []byte(`{ "Document": { "Echo": { "a": 1 } } }`))
	if err != nil {
		t.Fatalf("cid: %v", err)
	}
	sum := sha256.Sum256([]byte(`{"Document":{"Echo":{"a":1}}}`))
	want := "sha256:" + hex.EncodeToString(sum[:])
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if !ValidCID(got) {
		t.Fatalf("expected %s to be a valid cid", got)
	}
}

func TestValidCID(t *testing.T) {
	cases := map[string]bool{
		"":               false,
		"sha256:":        false,
		"md5:abcd":       false,
		"sha256:zz" + hex.EncodeToString(make([]byte, 31)): false,
		"sha256:" + hex.EncodeToString(make([]byte, 32)):   true,
	}
	for in, want := range cases {
		if got := ValidCID(in); got != want {
			t.Fatalf("ValidCID(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestReceiptHash_Preimage(t *testing.T) {
	c := mustCanonicalizer(t, ModeJCS)
	first, err := ReceiptHash(c, "2026-01-02T03:04:05Z", "sha256:aa", nil, 1)
	if err != nil {
		t.Fatalf("receipt hash: %v", err)
	}
	sum := sha256.Sum256([]byte(`{"cid":"sha256:aa","hop":1,"prev":null,"ts":"2026-01-02T03:04:05Z"}`))
	if want := "sha256:" + hex.EncodeToString(sum[:]); first != want {
		t.Fatalf("expected %s, got %s", want, first)
	}

	second, err := ReceiptHash(c, "2026-01-02T03:04:05Z", "sha256:aa", &first, 2)
	if err != nil {
		t.Fatalf("receipt hash: %v", err)
	}
	if second == first {
		t.Fatal("expected hop and prev to change the hash")
	}
}

func TestExportSignatureRoundTrip(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	msg := ExportMessage("sha256:abc", "trace-1", "2026-01-02T03:04:05Z")
	if string(msg) != "sha256:abc|trace-1|2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected message %q", msg)
	}
	encoded := EncodeSignature(ed25519.Sign(priv, msg))
	if len(encoded) != 86 {
		t.Fatalf("expected unpadded 86 char signature, got %d", len(encoded))
	}
	sig, err := DecodeBase64URL(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !VerifyEd25519(pub, msg, sig) {
		t.Fatal("expected signature to verify")
	}
	padded, err := DecodeBase64URL(encoded + "==")
	if err != nil || !VerifyEd25519(pub, msg, padded) {
		t.Fatal("expected padded signature to decode and verify")
	}
	if VerifyEd25519(pub, ExportMessage("sha256:abd", "trace-1", "2026-01-02T03:04:05Z"), sig) {
		t.Fatal("expected tampered message to fail")
	}
	if VerifyEd25519(pub, msg, sig[:63]) {
		t.Fatal("expected short signature to fail")
	}
	if VerifyEd25519(pub[:31], msg, sig) {
		t.Fatal("expected short key to fail")
	}
}
