package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
)

// ErrNotConfigured is returned by Start when OpenIO has not been called.
// Recoverable: open the I/O channels and call Start again.
var ErrNotConfigured = errors.New("session not configured, call OpenIO first")

// ioBuffer sizes the session's user channels so a slow consumer does not
// stall the state machine mid-protocol.
const ioBuffer = 16

// Role selects which side of the exchange a session drives. The roles are
// symmetric in cryptographic responsibility; the Prover is simply the peer
// that sends the first generator part.
type Role int

const (
	RoleProver Role = iota
	RoleVerifier
)

func (r Role) String() string {
	switch r {
	case RoleProver:
		return "prover"
	case RoleVerifier:
		return "verifier"
	default:
		return "unknown"
	}
}

// SessionState is the shared state alphabet of both roles.
type SessionState int

const (
	StateInitialProver SessionState = iota
	StateInitialVerifier
	StateSending
	StateWaiting
	StateEvaluating
	StateEvaluatingAndWaiting
	StateProofReady
	StateAborted
)

func (st SessionState) String() string {
	switch st {
	case StateInitialProver:
		return "InitialProver"
	case StateInitialVerifier:
		return "InitialVerifier"
	case StateSending:
		return "Sending"
	case StateWaiting:
		return "Waiting"
	case StateEvaluating:
		return "Evaluating"
	case StateEvaluatingAndWaiting:
		return "EvaluatingAndWaiting"
	case StateProofReady:
		return "ProofReady"
	case StateAborted:
		return "Aborted"
	default:
		return "unknown"
	}
}

// Session drives one proof-of-latency exchange. Create it with NewSession,
// open its I/O, then Start it with a role; the spawned task owns all
// mutable state and terminates after emitting a terminal message. A session
// is one-shot: nothing survives into another exchange.
type Session struct {
	Modulus    *big.Int
	UpperBound uint32

	keys *KeyPair

	input  chan PoLMessage
	output chan PoLMessage

	mu    sync.RWMutex
	state SessionState
}

// NewSession returns an unstarted session over the given modulus, bounded
// by upperBound squarings and signing with keys.
func NewSession(modulus *big.Int, upperBound uint32, keys *KeyPair) *Session {
	return &Session{
		Modulus:    modulus,
		UpperBound: upperBound,
		keys:       keys,
	}
}

// OpenIO allocates the session's user channels: one to feed peer messages
// in, one to read the session's messages out. The caller relays between
// these channels and the transport, and must drain the output.
func (s *Session) OpenIO() (chan<- PoLMessage, <-chan PoLMessage) {
	s.input = make(chan PoLMessage, ioBuffer)
	s.output = make(chan PoLMessage, ioBuffer)
	return s.input, s.output
}

// Start consumes the session into a task driving the given role.
func (s *Session) Start(role Role) error {
	if s.input == nil || s.output == nil || s.keys == nil {
		return ErrNotConfigured
	}
	switch role {
	case RoleProver:
		go s.runProver()
	case RoleVerifier:
		go s.runVerifier()
	default:
		return fmt.Errorf("unknown role %d", role)
	}
	return nil
}

// State reports the machine's current state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// abort is terminal: a single Error message, then the output closes.
func (s *Session) abort(reason string) {
	s.setState(StateAborted)
	log.Printf("PoL session aborted: %s", reason)
	s.output <- PoLMessage{Type: MsgError, Reason: reason}
	close(s.output)
}

// finish is the successful terminal: the countersigned record, then the
// output closes.
func (s *Session) finish(record *PoLRecord) {
	s.setState(StateProofReady)
	log.Printf("PoL complete: latency estimate %d squarings", record.LatencyEstimate())
	s.output <- record.Message()
	close(s.output)
}

// recv blocks for the next inbound message and enforces the expected
// variant. Transitions are total over (state x message): anything
// unexpected aborts.
func (s *Session) recv(want MessageType) (PoLMessage, bool) {
	msg, ok := <-s.input
	if !ok {
		s.abort(fmt.Sprintf("TransportClosed: peer channel closed in state %s", s.State()))
		return PoLMessage{}, false
	}
	if msg.Type != want {
		s.abort(fmt.Sprintf("UnexpectedMessage: Expected %s in state %s, got %s", want, s.State(), msg.Type))
		return PoLMessage{}, false
	}
	return msg, true
}

// combineGenerators derives the shared VDF base from the two halves:
// hashToMod(hex(gA+gB), N). Addition keeps the combination commutative and
// the pre-hash encoding is fixed to hexadecimal, so both peers derive the
// same base regardless of ordering. A base of 0 or 1 never leaves the
// trivial subgroup and must be rejected.
func combineGenerators(a, b, modulus *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	g := hashToMod(sum.Text(16), modulus)
	if g.Cmp(one) <= 0 {
		return nil, errors.New("derived generator outside the group")
	}
	return g, nil
}

func (s *Session) runProver() {
	s.setState(StateInitialProver)

	// The cap and generator half stay private until their moment in the
	// exchange.
	capA, err := NewSafePrime(CapBits)
	if err != nil {
		s.abort(fmt.Sprintf("cap generation failed: %v", err))
		return
	}
	gA, err := NewUint(GeneratorPartBits)
	if err != nil {
		s.abort(fmt.Sprintf("generator part generation failed: %v", err))
		return
	}

	s.setState(StateSending)
	s.output <- PoLMessage{Type: MsgGeneratorPart, Num: gA.String()}
	s.setState(StateWaiting)

	msg, ok := s.recv(MsgGeneratorPartAndCap)
	if !ok {
		return
	}
	gB, err := parseWireInt(msg.GeneratorPart, "generator part")
	if err != nil {
		s.abort(fmt.Sprintf("UnexpectedMessage: %v", err))
		return
	}
	capB, err := parseWireInt(msg.Cap, "cap")
	if err != nil {
		s.abort(fmt.Sprintf("UnexpectedMessage: %v", err))
		return
	}
	if !VerifyPrime(capB) {
		s.abort("InvalidCap")
		return
	}

	generator, err := combineGenerators(gA, gB, s.Modulus)
	if err != nil {
		s.abort(err.Error())
		return
	}

	// The peer's cap is known before the first squaring, so the proof can
	// be folded in parallel with the evaluation and is ready the moment
	// the upper bound is hit.
	vdf := NewVDF(s.Modulus, generator, s.UpperBound, ProofParallel).WithCap(capB)
	_, results := vdf.RunWorker()
	s.setState(StateEvaluating)

	res := <-results
	if res.Err != nil {
		if errors.Is(res.Err, ErrInvalidCap) {
			s.abort("InvalidCap")
		} else {
			s.abort(res.Err.Error())
		}
		return
	}
	proverProof := res.Proof

	s.output <- PoLMessage{
		Type:         MsgVDFProofAndCap,
		Proof:        proverProof.Wire(),
		Cap:          capA.String(),
		ProverPubKey: s.keys.PublicKeyHex(),
	}
	s.setState(StateWaiting)

	msg, ok = s.recv(MsgProofOfLatency)
	if !ok {
		return
	}
	if msg.Prover == nil || msg.Verifier == nil {
		s.abort("UnexpectedMessage: incomplete proof of latency record")
		return
	}
	if msg.VerifierPubKey == "" || msg.VerifierSignature == "" {
		s.abort("SignatureInvalid: verifier signature missing")
		return
	}
	if msg.ProverPubKey != s.keys.PublicKeyHex() {
		s.abort("SignatureInvalid: prover public key mismatch")
		return
	}

	echoed, err := msg.Prover.Parse()
	if err != nil || !echoed.Equal(proverProof) {
		s.abort("ProofInvalid: prover proof altered by peer")
		return
	}
	verifierProof, err := msg.Verifier.Parse()
	if err != nil {
		s.abort(fmt.Sprintf("ProofInvalid: %v", err))
		return
	}
	if !verifierProof.Verify() {
		s.abort("ProofInvalid: verifier proof failed verification")
		return
	}
	if verifierProof.Output.Iterations > s.UpperBound {
		s.abort("ProofInvalid: verifier proof exceeds the upper bound")
		return
	}
	if verifierProof.Modulus.Cmp(s.Modulus) != 0 || verifierProof.Generator.Cmp(generator) != 0 {
		s.abort("ProofInvalid: group parameters differ between proofs")
		return
	}

	signing := SigningString(msg.Prover, msg.Verifier, msg.ProverPubKey, msg.VerifierPubKey)
	if !VerifySignature(msg.VerifierPubKey, []byte(signing), msg.VerifierSignature) {
		s.abort("SignatureInvalid: verifier signature rejected")
		return
	}
	signature, err := s.keys.Sign([]byte(signing))
	if err != nil {
		s.abort(fmt.Sprintf("signing failed: %v", err))
		return
	}

	record := msg.Record()
	record.ProverSignature = hex.EncodeToString(signature)
	s.finish(record)
}

func (s *Session) runVerifier() {
	s.setState(StateInitialVerifier)

	capB, err := NewSafePrime(CapBits)
	if err != nil {
		s.abort(fmt.Sprintf("cap generation failed: %v", err))
		return
	}
	gB, err := NewUint(GeneratorPartBits)
	if err != nil {
		s.abort(fmt.Sprintf("generator part generation failed: %v", err))
		return
	}

	s.setState(StateWaiting)
	msg, ok := s.recv(MsgGeneratorPart)
	if !ok {
		return
	}
	gA, err := parseWireInt(msg.Num, "generator part")
	if err != nil {
		s.abort(fmt.Sprintf("UnexpectedMessage: %v", err))
		return
	}

	generator, err := combineGenerators(gA, gB, s.Modulus)
	if err != nil {
		s.abort(err.Error())
		return
	}

	// This side's cap stops the peer's VDF, not its own; the local proof
	// is folded sequentially once the peer's cap lands.
	vdf := NewVDF(s.Modulus, generator, s.UpperBound, ProofSequential).WithCap(capB)
	capIn, results := vdf.RunWorker()

	s.output <- PoLMessage{
		Type:          MsgGeneratorPartAndCap,
		GeneratorPart: gB.String(),
		Cap:           capB.String(),
	}
	s.setState(StateEvaluatingAndWaiting)

	msg, ok = s.recv(MsgVDFProofAndCap)
	if !ok {
		return
	}
	if msg.Proof == nil {
		s.abort("UnexpectedMessage: proof missing from vdf_proof_and_cap")
		return
	}
	capA, err := parseWireInt(msg.Cap, "cap")
	if err != nil {
		s.abort(fmt.Sprintf("UnexpectedMessage: %v", err))
		return
	}
	proverPubKey := msg.ProverPubKey
	if proverPubKey == "" {
		s.abort("SignatureInvalid: prover public key missing")
		return
	}

	// Cap the local VDF. If it already self-capped at the upper bound the
	// send lands in the worker's buffer and is dropped.
	capIn <- capA
	res := <-results
	if res.Err != nil {
		if errors.Is(res.Err, ErrInvalidCap) {
			s.abort("InvalidCap")
		} else {
			s.abort(res.Err.Error())
		}
		return
	}
	verifierProof := res.Proof

	proverProof, err := msg.Proof.Parse()
	if err != nil {
		s.abort(fmt.Sprintf("ProofInvalid: %v", err))
		return
	}
	if !proverProof.Verify() || !verifierProof.Verify() {
		s.abort("ProofInvalid: proof failed verification")
		return
	}
	if proverProof.Output.Iterations > s.UpperBound || verifierProof.Output.Iterations > s.UpperBound {
		s.abort("ProofInvalid: proof exceeds the upper bound")
		return
	}
	if proverProof.Modulus.Cmp(s.Modulus) != 0 || proverProof.Generator.Cmp(generator) != 0 {
		s.abort("ProofInvalid: group parameters differ between proofs")
		return
	}

	proverWire := msg.Proof
	verifierWire := verifierProof.Wire()
	signing := SigningString(proverWire, verifierWire, proverPubKey, s.keys.PublicKeyHex())
	signature, err := s.keys.Sign([]byte(signing))
	if err != nil {
		s.abort(fmt.Sprintf("signing failed: %v", err))
		return
	}

	s.output <- PoLMessage{
		Type:              MsgProofOfLatency,
		Prover:            proverWire,
		Verifier:          verifierWire,
		ProverPubKey:      proverPubKey,
		VerifierPubKey:    s.keys.PublicKeyHex(),
		VerifierSignature: hex.EncodeToString(signature),
	}
	s.setState(StateWaiting)

	msg, ok = s.recv(MsgProofOfLatency)
	if !ok {
		return
	}
	if msg.ProverSignature == "" {
		s.abort("SignatureInvalid: prover signature missing")
		return
	}
	if msg.Prover == nil || msg.Verifier == nil {
		s.abort("UnexpectedMessage: incomplete proof of latency record")
		return
	}
	if SigningString(msg.Prover, msg.Verifier, msg.ProverPubKey, msg.VerifierPubKey) != signing {
		s.abort("ProofInvalid: record altered after signing")
		return
	}
	if !VerifySignature(msg.ProverPubKey, []byte(signing), msg.ProverSignature) {
		s.abort("SignatureInvalid: prover signature rejected")
		return
	}

	s.finish(msg.Record())
}
