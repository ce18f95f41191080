package cmd

import (
	"errors"
	"log"
	"math"
	"math/big"
	"time"
)

const (
	// CapBits is the size of the Wesolowski challenge primes peers exchange.
	CapBits = 128

	// GeneratorPartBits is the size of each peer's generator contribution.
	GeneratorPartBits = 128
)

// ErrInvalidCap is returned by a VDF worker when a cap fails the primality
// check. Fatal for the session that received it.
var ErrInvalidCap = errors.New("invalid cap value encountered")

// VDFResult is the output of an evaluation: result = g^(2^iterations) mod N.
type VDFResult struct {
	Result     *big.Int
	Iterations uint32
}

// Cmp orders results by iteration count.
func (r VDFResult) Cmp(other VDFResult) int {
	switch {
	case r.Iterations < other.Iterations:
		return -1
	case r.Iterations > other.Iterations:
		return 1
	default:
		return 0
	}
}

// Equal compares both the group element and the iteration count.
func (r VDFResult) Equal(other VDFResult) bool {
	return r.Iterations == other.Iterations && r.Result.Cmp(other.Result) == 0
}

// VDFWorkerResult is what a worker emits on its output channel: either a
// finished proof or the error that ended the evaluation.
type VDFWorkerResult struct {
	Proof *VDFProof
	Err   error
}

// VDF holds the parameters of one evaluation: sequential squaring of
// Generator modulo Modulus, bounded by UpperBound iterations. A zero Cap
// means the challenge arrives later through the worker's input channel.
type VDF struct {
	Modulus    *big.Int
	Generator  *big.Int
	UpperBound uint32
	Cap        *big.Int
	Result     VDFResult
	ProofType  ProofType

	proofNudger   chan<- bool
	proofReceiver <-chan *big.Int
}

// NewVDF returns a VDF primed at (generator, 0 iterations).
func NewVDF(modulus, generator *big.Int, upperBound uint32, proofType ProofType) *VDF {
	return &VDF{
		Modulus:    modulus,
		Generator:  generator,
		UpperBound: upperBound,
		Cap:        new(big.Int),
		ProofType:  proofType,
		Result: VDFResult{
			Result:     new(big.Int).Set(generator),
			Iterations: 0,
		},
	}
}

// WithCap pre-sets the Wesolowski challenge. Required for ProofParallel,
// where the fold task needs the cap before the first squaring.
func (v *VDF) WithCap(cap *big.Int) *VDF {
	v.Cap = cap
	return v
}

// next advances the evaluator by exactly one squaring. Returns false once
// the upper bound is exhausted.
func (v *VDF) next() bool {
	if v.Result.Iterations >= v.UpperBound {
		return false
	}
	v.Result.Result.Mul(v.Result.Result, v.Result.Result)
	v.Result.Result.Mod(v.Result.Result, v.Modulus)
	v.Result.Iterations++
	return true
}

// RunWorker consumes the VDF into a worker goroutine and returns its two
// channels: one to send the peer's cap in, one to receive the single
// result. The worker squares until a cap arrives or the upper bound is
// reached, then finalizes a proof. Caps sent after termination are silently
// dropped; callers must drain the result channel.
func (v *VDF) RunWorker() (chan<- *big.Int, <-chan VDFWorkerResult) {
	capIn := make(chan *big.Int, 1)
	resultOut := make(chan VDFWorkerResult, 1)

	if v.ProofType == ProofParallel && v.Cap.Sign() > 0 {
		skeleton := &VDFProof{Modulus: v.Modulus, Generator: v.Generator, Cap: v.Cap}
		v.proofNudger, v.proofReceiver = skeleton.runParallel()
	}

	go v.workerLoop(capIn, resultOut)

	return capIn, resultOut
}

func (v *VDF) workerLoop(capIn <-chan *big.Int, out chan<- VDFWorkerResult) {
	start := time.Now()
	for {
		if !v.next() {
			// Upper bound reached before the peer capped us; fall back
			// to the pre-set cap, or generate one for the work done so
			// far.
			log.Printf("VDF upper bound of %d reached in %v, generating proof", v.Result.Iterations, time.Since(start))

			cap := v.Cap
			if cap.Sign() == 0 {
				generated, err := NewSafePrime(CapBits)
				if err != nil {
					out <- VDFWorkerResult{Err: err}
					return
				}
				cap = generated
			} else if !VerifyPrime(cap) {
				v.drainProofTask()
				out <- VDFWorkerResult{Err: ErrInvalidCap}
				return
			}
			v.finalize(cap, out)
			return
		}

		if v.proofNudger != nil {
			v.proofNudger <- true
		}

		select {
		case cap := <-capIn:
			log.Printf("VDF cap received after %d iterations (%v), generating proof", v.Result.Iterations, time.Since(start))
			if !VerifyPrime(cap) {
				v.drainProofTask()
				out <- VDFWorkerResult{Err: ErrInvalidCap}
				return
			}
			v.finalize(cap, out)
			return
		default:
		}
	}
}

// drainProofTask flushes a running parallel fold task so it terminates
// even when the worker ends in an error.
func (v *VDF) drainProofTask() {
	if v.proofNudger == nil {
		return
	}
	v.proofNudger <- false
	<-v.proofReceiver
}

// finalize produces the single worker result. In parallel mode the fold
// task already holds the proof for the pre-set cap; a single false flushes
// it. In sequential mode the proof is computed here from scratch.
func (v *VDF) finalize(cap *big.Int, out chan<- VDFWorkerResult) {
	if v.proofNudger != nil {
		v.proofNudger <- false
		pi := <-v.proofReceiver
		out <- VDFWorkerResult{Proof: &VDFProof{
			Modulus:   v.Modulus,
			Generator: v.Generator,
			Output:    v.Result,
			Cap:       v.Cap,
			Proof:     pi,
		}}
		return
	}

	proof := NewVDFProof(v.Modulus, v.Generator, v.Result, cap).calculate()
	if proof == nil {
		out <- VDFWorkerResult{Err: errors.New("no iterations to prove")}
		return
	}
	out <- VDFWorkerResult{Proof: proof}
}

// EstimateUpperBound measures how many squarings fit into msBound
// milliseconds on this hardware by running a throwaway evaluation and
// capping it after the budget elapses. The reached iteration count is
// adopted as the VDF's upper bound and returned.
func (v *VDF) EstimateUpperBound(msBound uint64) (uint32, error) {
	cap, err := NewPrime(CapBits)
	if err != nil {
		return 0, err
	}

	probe := NewVDF(v.Modulus, v.Generator, math.MaxUint32, ProofSequential)
	capIn, results := probe.RunWorker()

	time.Sleep(time.Duration(msBound) * time.Millisecond)
	capIn <- cap

	res := <-results
	if res.Err != nil {
		return 0, res.Err
	}
	v.UpperBound = res.Proof.Output.Iterations
	return v.UpperBound, nil
}
