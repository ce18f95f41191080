package cmd

import "math/big"

// ProofOfExponentiation is a Wesolowski-style proof that
// current = previous^exponent mod modulus, without the verifier redoing the
// whole exponentiation. The challenge prime is derived from the statement
// itself, so the proof is non-interactive.
type ProofOfExponentiation struct {
	Proof   *big.Int
	Modulus *big.Int
}

// poeChallenge derives the statement's unique challenge prime from the
// decimal form of previous+exponent+current.
func poeChallenge(previous, exponent, current, modulus *big.Int) *big.Int {
	sum := new(big.Int).Add(previous, exponent)
	sum.Add(sum, current)
	return hashToPrime(sum.String(), modulus)
}

// NewProofOfExponentiation proves current = previous^exponent mod modulus.
func NewProofOfExponentiation(previous, exponent, current, modulus *big.Int) *ProofOfExponentiation {
	unique := poeChallenge(previous, exponent, current, modulus)
	witness := new(big.Int).Div(exponent, unique)
	return &ProofOfExponentiation{
		Proof:   powMod(previous, witness, modulus),
		Modulus: modulus,
	}
}

// Verify checks the proof against the claimed exponentiation.
func (p *ProofOfExponentiation) Verify(previous, exponent, current *big.Int) bool {
	unique := poeChallenge(previous, exponent, current, p.Modulus)
	r := new(big.Int).Mod(exponent, unique)

	w := powMod(p.Proof, unique, p.Modulus)
	w.Mul(w, powMod(previous, r, p.Modulus))
	w.Mod(w, p.Modulus)

	return w.Cmp(current) == 0
}
