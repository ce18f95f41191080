package cmd

import (
	"math/big"
	"testing"
)

func TestProofOfExponentiation(t *testing.T) {
	modulus := big.NewInt(91)
	previous := big.NewInt(5)
	exponent := big.NewInt(10)
	current := powMod(previous, exponent, modulus)

	proof := NewProofOfExponentiation(previous, exponent, current, modulus)
	if !proof.Verify(previous, exponent, current) {
		t.Error("Valid proof of exponentiation was rejected")
	}
}

func TestProofOfExponentiationRejectsWrongClaim(t *testing.T) {
	modulus := big.NewInt(91)
	previous := big.NewInt(5)
	exponent := big.NewInt(10)
	current := powMod(previous, exponent, modulus)

	proof := NewProofOfExponentiation(previous, exponent, current, modulus)

	wrongCurrent := new(big.Int).Add(current, one)
	if proof.Verify(previous, exponent, wrongCurrent) {
		t.Error("Wrong result should not verify")
	}

	wrongExponent := new(big.Int).Add(exponent, one)
	if proof.Verify(previous, wrongExponent, current) {
		t.Error("Wrong exponent should not verify")
	}
}

func TestProofOfExponentiationLargerGroup(t *testing.T) {
	// A 64-bit modulus keeps the challenge prime search quick.
	modulus := big.NewInt(0).SetUint64(0xfff1fff1fff1fff1)
	previous := big.NewInt(78905317)
	exponent := big.NewInt(77698319831)
	current := powMod(previous, exponent, modulus)

	proof := NewProofOfExponentiation(previous, exponent, current, modulus)
	if !proof.Verify(previous, exponent, current) {
		t.Error("Valid proof of exponentiation was rejected")
	}
}
