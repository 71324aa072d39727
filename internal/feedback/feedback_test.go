package feedback

import (
	"math"
	"testing"

	"github.com/flexigpt/skillcore-go/spec"
)

func TestFingerprintStableUnderKeywordOrder(t *testing.T) {
	a := Fingerprint("commit my changes", []string{"git", "commit"})
	b := Fingerprint("commit my changes", []string{"commit", "git"})
	if a != b {
		t.Fatalf("fingerprint not order-invariant: %q vs %q", a, b)
	}
}

func TestFingerprintDistinguishesQueries(t *testing.T) {
	a := Fingerprint("commit my changes", []string{"git"})
	b := Fingerprint("run the tests", []string{"git"})
	if a == b {
		t.Fatalf("distinct queries fingerprinted identically")
	}
}

func TestRecordClipsToBounds(t *testing.T) {
	s := New()
	fp := Fingerprint("q", nil)
	var last float64
	for i := 0; i < 50; i++ {
		last = s.Record(fp, "git.status", spec.FeedbackPositive)
	}
	if last > maxBias+1e-9 {
		t.Fatalf("bias = %v, exceeds max %v", last, maxBias)
	}
}

func TestRecordPositiveThenNegativeRestoresNearOriginal(t *testing.T) {
	s := New()
	fp := Fingerprint("q", nil)
	before := s.Bias(fp, "git.status")

	s.Record(fp, "git.status", spec.FeedbackPositive)
	after := s.Record(fp, "git.status", spec.FeedbackNegative)

	if math.Abs(after-before) > 0.05 {
		t.Fatalf("bias after +1/-1 = %v, want within 0.05 of %v", after, before)
	}
}

func TestBiasDefaultsToZero(t *testing.T) {
	s := New()
	if v := s.Bias(Fingerprint("q", nil), "unknown"); v != 0 {
		t.Fatalf("Bias() = %v, want 0", v)
	}
}
