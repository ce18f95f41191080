package cmd

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// RSA2048Str is the published RSA-2048 factoring challenge modulus. Nobody
// knows its factorization, which makes the group it defines a group of
// unknown order suitable for sequential squaring.
const RSA2048Str = "25195908475657893494027183240048398571429282126204032027777137836043662020707595556264018525880784406918290641249515082189298559149176184502808489120072844992687392807287776735971418347270261896375014971824691165077613379859095700097330459748808428401797429100642458691817195118746121515172654632282216869987549182422433637259085141865462043576798423387184774447920739934236584823824281198163815010674810451660377306056201619676256133844143603833904414952634432190114657544454178424020924616515723350778707749817125772467962926386356373289912154831438167899885040445364023527381951378636564391212010397122822120720357"

var (
	two = big.NewInt(2)
	one = big.NewInt(1)

	// RSA2048 is the default modulus N, parsed once at package init.
	RSA2048 = mustInt(RSA2048Str)
)

func mustInt(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(fmt.Sprintf("invalid integer literal: %.32s...", s))
	}
	return n
}

// hashToMod maps an arbitrary string into [0, modulus). Successive SHA3-512
// digests of s followed by a counter are concatenated until at least
// 2*bitlen(modulus)+512 bits have accumulated, then the whole buffer is
// interpreted as a big-endian integer and reduced. Deterministic in both
// arguments.
func hashToMod(s string, modulus *big.Int) *big.Int {
	need := 2*modulus.BitLen() + 512
	var buf []byte
	for i := 0; len(buf)*8 < need; i++ {
		sum := sha3.Sum512([]byte(fmt.Sprintf("%s%d", s, i)))
		buf = append(buf, sum[:]...)
	}
	n := new(big.Int).SetBytes(buf)
	return n.Mod(n, modulus)
}

// hashToBits derives an integer of exactly bits bits from s.
func hashToBits(s string, bits int) *big.Int {
	shake := sha3.NewShake256()
	shake.Write([]byte(s))

	buf := make([]byte, (bits+7)/8)
	shake.Read(buf)

	n := new(big.Int).SetBytes(buf)
	mask := new(big.Int).Lsh(one, uint(bits))
	mask.Sub(mask, one)
	n.And(n, mask)
	n.SetBit(n, bits-1, 1)
	return n
}

// hashToPrime derives a deterministic prime strictly greater than lowerBound
// from s. The candidate has bitlen(lowerBound) bits with the lowest and
// highest bits forced to one; rejected candidates are re-hashed from their
// own decimal form until a prime lands above the bound. When that chain
// revisits a candidate (possible for small bit sizes), the re-hash input is
// salted with the attempt number so the search cannot cycle. Terminates
// whenever some prime of that bit length exceeds lowerBound.
func hashToPrime(s string, lowerBound *big.Int) *big.Int {
	bits := lowerBound.BitLen()
	candidate := hashToBits(s, bits)
	seen := make(map[string]bool)
	for attempt := 0; ; attempt++ {
		candidate.SetBit(candidate, 0, 1)
		candidate.SetBit(candidate, bits-1, 1)
		if candidate.Cmp(lowerBound) > 0 && candidate.ProbablyPrime(millerRabinRounds) {
			return candidate
		}
		next := candidate.String()
		if seen[next] {
			next = fmt.Sprintf("%s/%d", next, attempt)
		}
		seen[candidate.String()] = true
		candidate = hashToBits(next, bits)
	}
}

// powMod computes base^exp mod modulus.
func powMod(base, exp, modulus *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, modulus)
}
