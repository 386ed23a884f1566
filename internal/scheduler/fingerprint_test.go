package scheduler

import "testing"

func ptrInt(n int) *int          { return &n }
func ptrFloat(f float64) *float64 { return &f }

func TestFingerprint_Canonical(t *testing.T) {
	a := SharedParams{Model: "code-davinci-002", N: ptrInt(2), MaxTokens: ptrInt(10)}
	b := SharedParams{MaxTokens: ptrInt(10), Model: "code-davinci-002", N: ptrInt(2)}

	if fingerprint(a) != fingerprint(b) {
		t.Fatalf("fingerprints differ for equal content in different construction order:\n%s\n%s", fingerprint(a), fingerprint(b))
	}
}

func TestFingerprint_ExcludesAbsentFields(t *testing.T) {
	withTemp := SharedParams{Model: "m", Temperature: ptrFloat(0.7)}
	withoutTemp := SharedParams{Model: "m"}

	if fingerprint(withTemp) == fingerprint(withoutTemp) {
		t.Fatal("fingerprint must differ when an optional field is present vs absent")
	}
}

func TestFingerprint_EmptyStopDistinctFromMissing(t *testing.T) {
	missing := SharedParams{Model: "m"}
	empty := SharedParams{Model: "m", Stop: []string{}, HasStop: true}

	if fingerprint(missing) == fingerprint(empty) {
		t.Fatal("an empty stop list must fingerprint differently from a missing one")
	}
}

func TestFingerprint_StableAcrossEquivalentValues(t *testing.T) {
	s1 := SharedParams{Model: "m", Stop: []string{"a", "b"}, HasStop: true, Temperature: ptrFloat(1.0)}
	s2 := SharedParams{Temperature: ptrFloat(1.0), Stop: []string{"a", "b"}, HasStop: true, Model: "m"}

	if fingerprint(s1) != fingerprint(s2) {
		t.Fatal("fingerprint must be byte-identical for equal SharedParams content (P5)")
	}
}

func TestFingerprint_DifferentPromptsSameParamsCoalesce(t *testing.T) {
	p1 := deriveSharedParams(CompletionParams{Prompt: Prompt{Single: "hello"}, MaxTokens: ptrInt(5)}, "m")
	p2 := deriveSharedParams(CompletionParams{Prompt: Prompt{Single: "world"}, MaxTokens: ptrInt(5)}, "m")

	if fingerprint(p1) != fingerprint(p2) {
		t.Fatal("prompt must not participate in the fingerprint")
	}
}

func TestFingerprint_IntegralFloatStaysDistinguishable(t *testing.T) {
	got := encodeFloat(1.0)
	if got != "1.0" {
		t.Fatalf("encodeFloat(1.0) = %q, want \"1.0\"", got)
	}
}
