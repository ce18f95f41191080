package cmd

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestProofWireRoundTrip(t *testing.T) {
	output := evaluate(RSA2048, big.NewInt(3), 40)
	proof := NewVDFProof(RSA2048, big.NewInt(3), output, big.NewInt(257)).calculate()

	wire := proof.Wire()
	back, err := wire.Parse()
	if err != nil {
		t.Fatalf("Wire round trip failed: %v", err)
	}
	if !proof.Equal(back) {
		t.Error("Proof changed across the wire round trip")
	}
	if !back.Verify() {
		t.Error("Round-tripped proof failed verification")
	}
}

func TestProofWireThroughJSON(t *testing.T) {
	output := evaluate(big.NewInt(17), big.NewInt(11), 3)
	proof := NewVDFProof(big.NewInt(17), big.NewInt(11), output, big.NewInt(7)).calculate()

	msg := PoLMessage{Type: MsgVDFProofAndCap, Proof: proof.Wire(), Cap: "7"}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded PoLMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != MsgVDFProofAndCap {
		t.Errorf("Expected type %s, got %s", MsgVDFProofAndCap, decoded.Type)
	}

	back, err := decoded.Proof.Parse()
	if err != nil {
		t.Fatalf("Parsing decoded proof failed: %v", err)
	}
	if !proof.Equal(back) {
		t.Error("Proof changed across JSON round trip")
	}
}

func TestWireRejectsMalformedIntegers(t *testing.T) {
	wire := &VDFProofWire{
		Modulus:   "17",
		Generator: "0x11", // hex is not decimal
		Result:    "16",
		Cap:       "7",
		Proof:     "11",
	}
	if _, err := wire.Parse(); err == nil {
		t.Error("Expected an error for a non-decimal wire integer")
	}

	wire.Generator = ""
	if _, err := wire.Parse(); err == nil {
		t.Error("Expected an error for an empty wire integer")
	}
}

func TestSigningStringLayout(t *testing.T) {
	prover := &VDFProofWire{
		Modulus: "17", Generator: "11", Result: "16", Iterations: 3, Cap: "7", Proof: "11",
	}
	verifier := &VDFProofWire{
		Modulus: "17", Generator: "11", Result: "4", Iterations: 2, Cap: "5", Proof: "9",
	}

	got := SigningString(prover, verifier, "aabb", "ccdd")
	want := "17|11|16|3|7|11|4|2|5|9|aabb|ccdd"
	if got != want {
		t.Errorf("Signing string mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestRecordLatencyEstimate(t *testing.T) {
	record := &PoLRecord{
		Prover:   &VDFProofWire{Iterations: 150000},
		Verifier: &VDFProofWire{Iterations: 149200},
	}
	if got := record.LatencyEstimate(); got != 800 {
		t.Errorf("LatencyEstimate = %d, want 800", got)
	}

	record.Verifier.Iterations = 150400
	if got := record.LatencyEstimate(); got != 400 {
		t.Errorf("LatencyEstimate = %d, want 400", got)
	}

	empty := &PoLRecord{}
	if empty.LatencyEstimate() != 0 {
		t.Error("Empty record should estimate zero latency")
	}
}

func TestRecordMessageRoundTrip(t *testing.T) {
	record := &PoLRecord{
		Prover:            &VDFProofWire{Modulus: "17", Generator: "11", Result: "16", Iterations: 3, Cap: "7", Proof: "11"},
		Verifier:          &VDFProofWire{Modulus: "17", Generator: "11", Result: "4", Iterations: 2, Cap: "5", Proof: "9"},
		ProverPubKey:      "aa",
		VerifierPubKey:    "bb",
		ProverSignature:   "cc",
		VerifierSignature: "dd",
	}

	msg := record.Message()
	if msg.Type != MsgProofOfLatency {
		t.Errorf("Expected proof_of_latency message, got %s", msg.Type)
	}

	back := msg.Record()
	if back.SigningString() != record.SigningString() {
		t.Error("Record changed across message round trip")
	}
	if back.ProverSignature != "cc" || back.VerifierSignature != "dd" {
		t.Error("Signatures lost across message round trip")
	}
}
