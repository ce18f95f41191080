package cmd

import (
	"errors"
	"math"
	"math/big"
	"testing"
	"time"
)

// N = 17, g = 11: squaring yields 11, 2, 4, 16, ...
func TestEvaluatorSequence(t *testing.T) {
	vdf := NewVDF(big.NewInt(17), big.NewInt(11), 3, ProofSequential)

	if vdf.Result.Result.Cmp(big.NewInt(11)) != 0 || vdf.Result.Iterations != 0 {
		t.Fatalf("Expected initial state (11, 0), got (%s, %d)", vdf.Result.Result, vdf.Result.Iterations)
	}

	expected := []int64{2, 4, 16}
	for i, want := range expected {
		if !vdf.next() {
			t.Fatalf("Evaluator exhausted after %d steps, expected %d", i, len(expected))
		}
		if vdf.Result.Result.Cmp(big.NewInt(want)) != 0 {
			t.Errorf("Step %d: expected %d, got %s", i+1, want, vdf.Result.Result)
		}
		if vdf.Result.Iterations != uint32(i+1) {
			t.Errorf("Step %d: expected iteration count %d, got %d", i+1, i+1, vdf.Result.Iterations)
		}
	}

	if vdf.next() {
		t.Error("Evaluator should be exhausted at the upper bound")
	}
	if vdf.Result.Iterations != 3 {
		t.Errorf("Iterations advanced past the upper bound: %d", vdf.Result.Iterations)
	}
}

// Property: result after k steps equals g^(2^k) mod N.
func TestEvaluatorMatchesClosedForm(t *testing.T) {
	generator := big.NewInt(3)
	vdf := NewVDF(RSA2048, generator, 64, ProofSequential)

	for k := 1; vdf.next(); k++ {
		exp := new(big.Int).Lsh(one, uint(k)) // 2^k
		want := powMod(generator, exp, RSA2048)
		if vdf.Result.Result.Cmp(want) != 0 {
			t.Fatalf("Step %d: evaluator diverged from g^(2^%d) mod N", k, k)
		}
	}
}

// S1: N = 17, g = 11, T = 3, cap = 7.
func TestSmallProofRoundTrip(t *testing.T) {
	vdf := NewVDF(big.NewInt(17), big.NewInt(11), 3, ProofSequential)
	for vdf.next() {
	}

	proof := NewVDFProof(vdf.Modulus, vdf.Generator, vdf.Result, big.NewInt(7)).calculate()
	if proof == nil {
		t.Fatal("calculate returned nil for a three-step evaluation")
	}

	// pi = g^(floor(2^3 / 7)) = 11^1
	if proof.Proof.Cmp(big.NewInt(11)) != 0 {
		t.Errorf("Expected proof value 11, got %s", proof.Proof)
	}
	if !proof.Verify() {
		t.Error("Valid proof was rejected")
	}
}

// S2: a composite cap must surface ErrInvalidCap.
func TestWorkerRejectsCompositeCap(t *testing.T) {
	vdf := NewVDF(big.NewInt(17), big.NewInt(11), math.MaxUint32, ProofSequential)
	capIn, results := vdf.RunWorker()

	capIn <- big.NewInt(4)

	res := <-results
	if res.Err == nil {
		t.Fatal("Expected an error for composite cap 4")
	}
	if !errors.Is(res.Err, ErrInvalidCap) {
		t.Errorf("Expected ErrInvalidCap, got %v", res.Err)
	}
	if res.Proof != nil {
		t.Error("No proof should accompany an invalid cap")
	}
}

func TestWorkerCapMidEvaluation(t *testing.T) {
	vdf := NewVDF(RSA2048, big.NewInt(3), math.MaxUint32, ProofSequential)
	capIn, results := vdf.RunWorker()

	// Let it square for a moment before capping.
	time.Sleep(20 * time.Millisecond)
	capIn <- big.NewInt(257)

	res := <-results
	if res.Err != nil {
		t.Fatalf("Worker failed: %v", res.Err)
	}
	if res.Proof.Output.Iterations == 0 {
		t.Error("Expected at least one squaring before the cap landed")
	}
	if res.Proof.Cap.Cmp(big.NewInt(257)) != 0 {
		t.Errorf("Proof should carry the received cap, got %s", res.Proof.Cap)
	}
	if !res.Proof.Verify() {
		t.Error("Capped proof failed verification")
	}
}

// Property: the worker emits exactly one result and respects the bound.
func TestWorkerSelfCapsAtUpperBound(t *testing.T) {
	const bound = 50
	vdf := NewVDF(RSA2048, big.NewInt(5), bound, ProofSequential)
	capIn, results := vdf.RunWorker()

	res := <-results
	if res.Err != nil {
		t.Fatalf("Worker failed: %v", res.Err)
	}
	if res.Proof.Output.Iterations > bound+1 {
		t.Errorf("Iterations %d exceed upper bound %d", res.Proof.Output.Iterations, bound)
	}
	if !VerifyPrime(res.Proof.Cap) {
		t.Errorf("Self-generated cap %s is not prime", res.Proof.Cap)
	}
	if !res.Proof.Verify() {
		t.Error("Self-capped proof failed verification")
	}

	// A late cap is dropped without a second result.
	capIn <- big.NewInt(7)
	select {
	case extra, ok := <-results:
		if ok {
			t.Errorf("Worker emitted a second result: %+v", extra)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWorkerPresetCompositeCap(t *testing.T) {
	// A composite pre-set cap surfaces at the upper bound.
	vdf := NewVDF(RSA2048, big.NewInt(5), 10, ProofSequential).WithCap(big.NewInt(20))
	_, results := vdf.RunWorker()

	res := <-results
	if !errors.Is(res.Err, ErrInvalidCap) {
		t.Errorf("Expected ErrInvalidCap for composite pre-set cap, got %v", res.Err)
	}
}

func TestEstimateUpperBound(t *testing.T) {
	vdf := NewVDF(RSA2048, big.NewInt(3), 0, ProofSequential)
	bound, err := vdf.EstimateUpperBound(50)
	if err != nil {
		t.Fatalf("EstimateUpperBound failed: %v", err)
	}
	if bound == 0 {
		t.Error("Expected a positive iteration estimate")
	}
	if vdf.UpperBound != bound {
		t.Errorf("Upper bound not adopted: have %d, estimate %d", vdf.UpperBound, bound)
	}
}

func TestVDFResultOrdering(t *testing.T) {
	a := VDFResult{Result: big.NewInt(4), Iterations: 2}
	b := VDFResult{Result: big.NewInt(16), Iterations: 3}

	if a.Cmp(b) >= 0 {
		t.Error("Results should order by iteration count")
	}
	if b.Cmp(a) <= 0 {
		t.Error("Results should order by iteration count")
	}
	if a.Cmp(a) != 0 || !a.Equal(a) {
		t.Error("A result should equal itself")
	}
	if a.Equal(b) {
		t.Error("Distinct results should not be equal")
	}
}

func BenchmarkEvaluatorSquaring(b *testing.B) {
	vdf := NewVDF(RSA2048, big.NewInt(3), math.MaxUint32, ProofSequential)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vdf.next()
	}
}
