package cmd

import (
	"net"
	"testing"
)

// Full exchange over a real TCP connection with a small bound.
func TestTransportEndToEnd(t *testing.T) {
	const upperBound = 2000

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	verifierKeys := testKeys(t)
	proverKeys := testKeys(t)

	type verifierResult struct {
		record *PoLRecord
		err    error
	}
	verifierDone := make(chan verifierResult, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			verifierDone <- verifierResult{err: err}
			return
		}
		record, err := RunVerifier(conn, NewSession(RSA2048, upperBound, verifierKeys))
		verifierDone <- verifierResult{record: record, err: err}
	}()

	proverRecord, err := RunProver(listener.Addr().String(), NewSession(RSA2048, upperBound, proverKeys))
	if err != nil {
		t.Fatalf("Prover failed: %v", err)
	}

	vres := <-verifierDone
	if vres.err != nil {
		t.Fatalf("Verifier failed: %v", vres.err)
	}

	if proverRecord.SigningString() != vres.record.SigningString() {
		t.Error("Peers hold diverging records")
	}
	if proverRecord.LatencyEstimate() >= upperBound {
		t.Errorf("Latency estimate %d should be below the upper bound", proverRecord.LatencyEstimate())
	}

	signing := []byte(proverRecord.SigningString())
	if !VerifySignature(proverRecord.ProverPubKey, signing, proverRecord.ProverSignature) {
		t.Error("Prover signature invalid")
	}
	if !VerifySignature(proverRecord.VerifierPubKey, signing, proverRecord.VerifierSignature) {
		t.Error("Verifier signature invalid")
	}
}

func TestRunProverDialFailure(t *testing.T) {
	session := NewSession(RSA2048, 100, testKeys(t))
	if _, err := RunProver("127.0.0.1:1", session); err == nil {
		t.Error("Expected an error dialing a closed port")
	}
}
