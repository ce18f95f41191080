package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
)

// The transport is the spec's "opaque reliable ordered message channel":
// newline-delimited JSON over a single TCP connection, one PoLMessage per
// line. It relays between a session's I/O channels and the peer, keeps
// Error messages local, and hands the completed record back to the caller.

// RunProver dials a verifier, drives a prover session over the connection
// and returns the countersigned record.
func RunProver(addr string, session *Session) (*PoLRecord, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial verifier at %s: %w", addr, err)
	}
	defer conn.Close()

	return runPeer(conn, session, RoleProver)
}

// RunVerifier drives a verifier session over an accepted connection and
// returns the countersigned record.
func RunVerifier(conn net.Conn, session *Session) (*PoLRecord, error) {
	defer conn.Close()
	return runPeer(conn, session, RoleVerifier)
}

func runPeer(conn net.Conn, session *Session, role Role) (*PoLRecord, error) {
	input, output := session.OpenIO()
	if err := session.Start(role); err != nil {
		return nil, err
	}

	// Reader: peer wire -> session input. Ends when the connection drops,
	// which the session observes as a closed input channel.
	go func() {
		decoder := json.NewDecoder(conn)
		for {
			var msg PoLMessage
			if err := decoder.Decode(&msg); err != nil {
				close(input)
				return
			}
			input <- msg
		}
	}()

	encoder := json.NewEncoder(conn)
	for msg := range output {
		switch msg.Type {
		case MsgError:
			// Errors are for the local user, never the peer.
			return nil, errors.New(msg.Reason)

		case MsgProofOfLatency:
			if msg.ProverSignature != "" && msg.VerifierSignature != "" {
				// Fully countersigned: the local deliverable. The
				// prover still forwards it so the verifier can reach
				// its own terminal state.
				if role == RoleProver {
					if err := encoder.Encode(msg); err != nil {
						return nil, fmt.Errorf("failed to send final record: %w", err)
					}
				}
				return msg.Record(), nil
			}
			if err := encoder.Encode(msg); err != nil {
				return nil, fmt.Errorf("failed to send message: %w", err)
			}

		default:
			if err := encoder.Encode(msg); err != nil {
				return nil, fmt.Errorf("failed to send message: %w", err)
			}
		}
	}

	return nil, errors.New("session ended without a terminal message")
}

// ServeVerifier accepts connections on addr and runs one verifier session
// per connection, invoking handle with each completed record. Blocks until
// the listener fails.
func ServeVerifier(addr string, newSession func() *Session, handle func(*PoLRecord)) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	defer listener.Close()
	log.Printf("Listening for proof-of-latency peers on %s", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accept failed: %w", err)
		}

		go func(conn net.Conn) {
			record, err := RunVerifier(conn, newSession())
			if err != nil {
				log.Printf("Verifier session with %s failed: %v", conn.RemoteAddr(), err)
				return
			}
			log.Printf("Verifier session with %s complete, latency estimate %d squarings",
				conn.RemoteAddr(), record.LatencyEstimate())
			if handle != nil {
				handle(record)
			}
		}(conn)
	}
}
