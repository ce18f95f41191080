package cmd

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Every big integer crosses the wire as a radix-10 string. Decimal is the
// only representation that round-trips arbitrary-precision integers through
// JSON on every host language, so it is mandatory here.

// MessageType tags the variants of the protocol alphabet.
type MessageType string

const (
	MsgGeneratorPart       MessageType = "generator_part"
	MsgCap                 MessageType = "cap"
	MsgGeneratorPartAndCap MessageType = "generator_part_and_cap"
	MsgVDFProof            MessageType = "vdf_proof"
	MsgVDFProofAndCap      MessageType = "vdf_proof_and_cap"
	MsgProofOfLatency      MessageType = "proof_of_latency"
	MsgError               MessageType = "error"
)

// VDFProofWire is the transport form of a VDFProof.
type VDFProofWire struct {
	Modulus    string `json:"modulus"`
	Generator  string `json:"generator"`
	Result     string `json:"result"`
	Iterations uint32 `json:"iterations"`
	Cap        string `json:"cap"`
	Proof      string `json:"proof"`
}

// Wire converts a proof to its decimal-string transport form.
func (p *VDFProof) Wire() *VDFProofWire {
	return &VDFProofWire{
		Modulus:    p.Modulus.String(),
		Generator:  p.Generator.String(),
		Result:     p.Output.Result.String(),
		Iterations: p.Output.Iterations,
		Cap:        p.Cap.String(),
		Proof:      p.Proof.String(),
	}
}

// Parse converts the wire form back into a VDFProof.
func (w *VDFProofWire) Parse() (*VDFProof, error) {
	modulus, err := parseWireInt(w.Modulus, "modulus")
	if err != nil {
		return nil, err
	}
	generator, err := parseWireInt(w.Generator, "generator")
	if err != nil {
		return nil, err
	}
	result, err := parseWireInt(w.Result, "result")
	if err != nil {
		return nil, err
	}
	cap, err := parseWireInt(w.Cap, "cap")
	if err != nil {
		return nil, err
	}
	proof, err := parseWireInt(w.Proof, "proof")
	if err != nil {
		return nil, err
	}
	return &VDFProof{
		Modulus:   modulus,
		Generator: generator,
		Output:    VDFResult{Result: result, Iterations: w.Iterations},
		Cap:       cap,
		Proof:     proof,
	}, nil
}

func parseWireInt(s, field string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed %s on wire: %.32q", field, s)
	}
	return n, nil
}

// PoLMessage is the single record type covering the whole message alphabet.
// Only the fields of the tagged variant are populated.
type PoLMessage struct {
	Type MessageType `json:"type"`

	// GeneratorPart, Cap
	Num string `json:"num,omitempty"`

	// GeneratorPartAndCap
	GeneratorPart string `json:"generator_part,omitempty"`
	Cap           string `json:"cap,omitempty"`

	// VDFProof, VDFProofAndCap (Cap reused above)
	Proof *VDFProofWire `json:"proof,omitempty"`

	// ProofOfLatency
	Prover            *VDFProofWire `json:"prover,omitempty"`
	Verifier          *VDFProofWire `json:"verifier,omitempty"`
	ProverPubKey      string        `json:"prover_pub_key,omitempty"`
	VerifierPubKey    string        `json:"verifier_pub_key,omitempty"`
	ProverSignature   string        `json:"prover_signature,omitempty"`
	VerifierSignature string        `json:"verifier_signature,omitempty"`

	// Error
	Reason string `json:"reason,omitempty"`
}

// PoLRecord is a completed, countersigned proof of latency.
type PoLRecord struct {
	Prover            *VDFProofWire `json:"prover"`
	Verifier          *VDFProofWire `json:"verifier"`
	ProverPubKey      string        `json:"prover_pub_key"`
	VerifierPubKey    string        `json:"verifier_pub_key"`
	ProverSignature   string        `json:"prover_signature"`
	VerifierSignature string        `json:"verifier_signature"`
}

// Record extracts the proof-of-latency payload from a message.
func (m *PoLMessage) Record() *PoLRecord {
	return &PoLRecord{
		Prover:            m.Prover,
		Verifier:          m.Verifier,
		ProverPubKey:      m.ProverPubKey,
		VerifierPubKey:    m.VerifierPubKey,
		ProverSignature:   m.ProverSignature,
		VerifierSignature: m.VerifierSignature,
	}
}

// Message wraps a record back into its wire message.
func (r *PoLRecord) Message() PoLMessage {
	return PoLMessage{
		Type:              MsgProofOfLatency,
		Prover:            r.Prover,
		Verifier:          r.Verifier,
		ProverPubKey:      r.ProverPubKey,
		VerifierPubKey:    r.VerifierPubKey,
		ProverSignature:   r.ProverSignature,
		VerifierSignature: r.VerifierSignature,
	}
}

// LatencyEstimate is the absolute difference in squarings between the two
// embedded proofs.
func (r *PoLRecord) LatencyEstimate() uint32 {
	if r.Prover == nil || r.Verifier == nil {
		return 0
	}
	if r.Prover.Iterations > r.Verifier.Iterations {
		return r.Prover.Iterations - r.Verifier.Iterations
	}
	return r.Verifier.Iterations - r.Prover.Iterations
}

// SigningString is the canonical encoding both peers sign: the decimal
// forms of N, g, both proofs' result/T/cap/proof and both public keys,
// joined with "|". Both signatures must cover this exact string.
func SigningString(prover, verifier *VDFProofWire, proverPubKey, verifierPubKey string) string {
	return strings.Join([]string{
		prover.Modulus,
		prover.Generator,
		prover.Result,
		strconv.FormatUint(uint64(prover.Iterations), 10),
		prover.Cap,
		prover.Proof,
		verifier.Result,
		strconv.FormatUint(uint64(verifier.Iterations), 10),
		verifier.Cap,
		verifier.Proof,
		proverPubKey,
		verifierPubKey,
	}, "|")
}

// SigningString over the record's own fields.
func (r *PoLRecord) SigningString() string {
	return SigningString(r.Prover, r.Verifier, r.ProverPubKey, r.VerifierPubKey)
}
