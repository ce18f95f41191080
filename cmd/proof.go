package cmd

import (
	"math/big"
	"runtime"
	"sync"
)

// ProofType selects how the Wesolowski proof gets computed.
type ProofType int

const (
	// ProofSequential folds the proof after evaluation has finished. The
	// scalar exponentiations parallelize across CPU cores; the fold itself
	// is inherently serial.
	ProofSequential ProofType = iota

	// ProofParallel runs a dedicated fold task alongside the evaluator,
	// advancing one step per squaring. Only valid when the cap is fixed
	// before evaluation starts.
	ProofParallel
)

func (pt ProofType) String() string {
	switch pt {
	case ProofSequential:
		return "sequential"
	case ProofParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// nudgeBuffer decouples the evaluator from the parallel fold task. A fold
// step costs roughly two modular multiplications against the evaluator's
// one, so the evaluator is allowed to run ahead.
const nudgeBuffer = 1 << 10

// VDFProof is a Wesolowski proof that result = generator^(2^T) mod modulus,
// where T is the iteration count of the embedded output. It satisfies
// proof^cap * generator^(2^T mod cap) == result (mod modulus).
type VDFProof struct {
	Modulus   *big.Int
	Generator *big.Int
	Output    VDFResult
	Cap       *big.Int
	Proof     *big.Int
}

// NewVDFProof returns an unevaluated proof skeleton for the given VDF
// output. Call calculate to fill in the proof value.
func NewVDFProof(modulus, generator *big.Int, output VDFResult, cap *big.Int) *VDFProof {
	return &VDFProof{
		Modulus:   modulus,
		Generator: generator,
		Output:    output,
		Cap:       cap,
	}
}

// calculate computes the proof value for an already finished evaluation:
// pi = prod(generator^b_i) folded as pi <- pi^2 * g^b_i, with
// b_i = floor(2*r_i / cap) and r_{i+1} = 2*r_i mod cap, r_0 = 1. The b and
// y vectors are computed in parallel across cores; only the final fold is
// serial. Returns nil when the output holds zero iterations.
func (p *VDFProof) calculate() *VDFProof {
	t := int(p.Output.Iterations)
	if t == 0 {
		return nil
	}

	// The r sequence is serial but cheap: one shift and one reduction per
	// step on cap-sized numbers.
	r := make([]*big.Int, t)
	r[0] = big.NewInt(1)
	for i := 1; i < t; i++ {
		r[i] = new(big.Int).Lsh(r[i-1], 1)
		r[i].Mod(r[i], p.Cap)
	}

	y := make([]*big.Int, t)
	workers := runtime.NumCPU()
	chunk := (t + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > t {
			hi = t
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			b := new(big.Int)
			for i := lo; i < hi; i++ {
				b.Lsh(r[i], 1)
				b.Div(b, p.Cap)
				y[i] = powMod(p.Generator, b, p.Modulus)
			}
		}(lo, hi)
	}
	wg.Wait()

	pi := big.NewInt(1)
	for i := 0; i < t; i++ {
		pi.Mul(pi, pi)
		pi.Mod(pi, p.Modulus)
		pi.Mul(pi, y[i])
		pi.Mod(pi, p.Modulus)
	}

	p.Proof = pi
	return p
}

// runParallel starts the incremental fold task for a cap that is known
// before evaluation begins. The task advances one fold step per true on the
// nudge channel and emits the accumulated proof value on the first false,
// then terminates. The evaluator must send exactly one true per squaring
// and a single final false, otherwise the proof is under- or over-advanced.
func (p *VDFProof) runParallel() (chan<- bool, <-chan *big.Int) {
	nudge := make(chan bool, nudgeBuffer)
	out := make(chan *big.Int, 1)

	go func() {
		pi := big.NewInt(1)
		r := big.NewInt(1)
		b := new(big.Int)
		gb := new(big.Int)
		for step := range nudge {
			if !step {
				out <- pi
				return
			}
			b.Lsh(r, 1)
			b.Div(b, p.Cap)
			r.Lsh(r, 1)
			r.Mod(r, p.Cap)

			pi.Mul(pi, pi)
			pi.Mod(pi, p.Modulus)
			gb.Exp(p.Generator, b, p.Modulus)
			pi.Mul(pi, gb)
			pi.Mod(pi, p.Modulus)
		}
	}()

	return nudge, out
}

// Verify checks the proof against its own parameters. This is the sole
// algorithmic correctness check of the protocol: the proof must lie in the
// group and proof^cap * generator^(2^T mod cap) must equal the claimed
// result.
func (p *VDFProof) Verify() bool {
	if p == nil || p.Modulus == nil || p.Generator == nil || p.Cap == nil || p.Proof == nil {
		return false
	}
	if p.Modulus.Sign() <= 0 || p.Cap.Sign() <= 0 {
		return false
	}
	if p.Proof.Cmp(p.Modulus) >= 0 {
		return false
	}

	t := new(big.Int).SetUint64(uint64(p.Output.Iterations))
	r := powMod(two, t, p.Cap)

	lhs := powMod(p.Proof, p.Cap, p.Modulus)
	lhs.Mul(lhs, powMod(p.Generator, r, p.Modulus))
	lhs.Mod(lhs, p.Modulus)

	return lhs.Cmp(p.Output.Result) == 0
}

// Equal reports whether two proofs agree on all six fields.
func (p *VDFProof) Equal(other *VDFProof) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Modulus.Cmp(other.Modulus) == 0 &&
		p.Generator.Cmp(other.Generator) == 0 &&
		p.Output.Equal(other.Output) &&
		p.Cap.Cmp(other.Cap) == 0 &&
		p.Proof.Cmp(other.Proof) == 0
}

// AbsDifference returns the absolute difference in iteration counts between
// two proofs. Once both peers hold each other's proofs this is the latency
// estimate, denominated in squarings.
func (p *VDFProof) AbsDifference(other *VDFProof) uint32 {
	if p.Output.Iterations > other.Output.Iterations {
		return p.Output.Iterations - other.Output.Iterations
	}
	return other.Output.Iterations - p.Output.Iterations
}
