package zrtp

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
)

// Sentinel errors for the negotiation itself; kept local to this
// package (rather than the root uvgrtp package's error set) since
// MediaStream treats a failed negotiation as an opaque cause wrapped
// in its own ErrAuthFailure.
var (
	ErrTimeout   = errors.New("zrtp: phase timed out")
	ErrProtocol  = errors.New("zrtp: unexpected or malformed message")
	ErrAuth      = errors.New("zrtp: confirm MAC verification failed")
)

// Role distinguishes which side of a Commit race drives the DH
// exchange. Both sides always send Commit, so the role is always
// decided by RFC 6189 §4.2's hvi/ZID tiebreak.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// Retransmission timers, RFC 6189 §5.2: T1 doubles toward T2 until the
// phase's total timeout elapses, at which point the phase fails.
const (
	t1Base        = 50 * time.Millisecond
	t2Hello       = 200 * time.Millisecond
	helloTimeout  = 3 * time.Second
	t2Other       = 1200 * time.Millisecond
	otherTimeout  = 10 * time.Second
)

// Session drives one MediaStream's RFC 6189 key-agreement handshake.
// It is used for exactly one negotiation; a successful Negotiate
// leaves Keys and SAS populated for the caller to hand to the SRTP
// layer.
type Session struct {
	ZID  ZID
	send func([]byte) error
	recv <-chan []byte

	hashChain *HashChain
	keyPair   *KeyPair

	peerZID   ZID
	peerH3    [32]byte
	peerHello *HelloMessage

	Keys *KeySet
	SAS  string

	log *logrus.Entry
}

// NewSession creates a Session with a freshly generated ZID and hash
// chain. send transmits one ZRTP message; recv delivers inbound
// messages already demultiplexed from the stream's socket by the
// caller (MediaStream frames ZRTP datagrams behind the magic cookie
// transport.Socket demultiplexes on, the way RFC 6189 §5.1.2
// describes the ZRTP packet's own header discriminating it from RTP).
func NewSession(send func([]byte) error, recv <-chan []byte) (*Session, error) {
	var zid ZID
	if _, err := rand.Read(zid[:]); err != nil {
		return nil, fmt.Errorf("zrtp: generating zid: %w", err)
	}
	hc, err := NewHashChain()
	if err != nil {
		return nil, err
	}
	return &Session{
		ZID:       zid,
		send:      send,
		recv:      recv,
		hashChain: hc,
		log:       logrus.WithField("component", "zrtp"),
	}, nil
}

// Negotiate runs the exchange to completion: Hello, Commit, DHPart and
// Confirm, each side sending one message per phase and waiting for the
// peer's. No HelloACK, Conf2ACK or GoClear message is sent. The role
// comes from the hvi/ZID comparison in runCommit alone; preferInitiator
// does not affect it.
func (s *Session) Negotiate(preferInitiator bool) error {
	if err := s.runHello(); err != nil {
		return err
	}

	role, err := s.runCommit(preferInitiator)
	if err != nil {
		return err
	}
	s.log.WithField("role", role).Debug("zrtp: commit resolved")

	sharedSecret, err := s.runDHPart(role)
	if err != nil {
		return err
	}

	s0 := deriveS0(sharedSecret.Bytes(), s.localH3(role), s.remoteH3(role), s.localZID(role), s.responderZID(role))

	if err := s.runConfirm(role, s0); err != nil {
		return err
	}

	keys, err := DeriveKeys(s0, s.kdfContext(role))
	if err != nil {
		return err
	}
	s.Keys = keys
	s.SAS = RenderSAS(s0)
	s.log.WithField("sas", s.SAS).Info("zrtp: negotiation complete")
	return nil
}

func (s *Session) localH3(role Role) [32]byte {
	if role == RoleInitiator {
		return s.hashChain.H3
	}
	return s.peerH3
}

func (s *Session) remoteH3(role Role) [32]byte {
	if role == RoleInitiator {
		return s.peerH3
	}
	return s.hashChain.H3
}

func (s *Session) localZID(role Role) ZID {
	if role == RoleInitiator {
		return s.ZID
	}
	return s.peerZID
}

func (s *Session) responderZID(role Role) ZID {
	if role == RoleInitiator {
		return s.peerZID
	}
	return s.ZID
}

func (s *Session) kdfContext(role Role) []byte {
	var buf bytes.Buffer
	lz, rz := s.localZID(role), s.responderZID(role)
	buf.Write(lz[:])
	buf.Write(rz[:])
	return buf.Bytes()
}

// runHello is RFC 6189 §5.3's discovery phase: it sends this side's
// Hello until the peer's Hello arrives. Receipt of the peer's Hello
// ends the phase; no HelloACK is sent or awaited.
func (s *Session) runHello() error {
	hello := &HelloMessage{
		ZID:           s.ZID,
		H3:            s.hashChain.H3,
		HashAlgos:     []string{"S256"},
		CipherAlgos:   []string{"AES1"},
		AuthAlgos:     []string{"HS32"},
		KeyAgreements: []string{"DH3k"},
		SASTypes:      []string{"B32 "},
	}
	copy(hello.Version[:], "1.10")
	copy(hello.ClientID[:], "uvgrtp-go")

	buf, err := MarshalHello(hello)
	if err != nil {
		return err
	}

	reply, err := s.retransmit(buf, t2Hello, helloTimeout, func(in []byte) bool {
		peer, err := UnmarshalHello(in)
		if err != nil {
			return false
		}
		s.peerHello = peer
		s.peerZID = peer.ZID
		s.peerH3 = peer.H3
		return true
	})
	if err != nil {
		return err
	}
	_ = reply
	return nil
}

// runCommit sends or awaits Commit, resolving a simultaneous-commit
// race by comparing hvi values (lower wins responder role), falling
// back to ZID comparison on a tie, per RFC 6189 §4.2.
func (s *Session) runCommit(preferInitiator bool) (Role, error) {
	hvi := sha256Sum(s.hashChain.H3[:])

	commit := &CommitMessage{
		ZID:      s.ZID,
		Hash:     "S256",
		Cipher:   "AES1",
		Auth:     "HS32",
		KeyAgree: "DH3k",
		SAS:      "B32 ",
		HVI:      hvi,
	}
	buf, err := MarshalCommit(commit)
	if err != nil {
		return RoleInitiator, err
	}

	var peerCommit *CommitMessage
	_, err = s.retransmit(buf, t2Other, otherTimeout, func(in []byte) bool {
		peer, err := UnmarshalCommit(in)
		if err != nil {
			return false
		}
		peerCommit = peer
		return true
	})
	if err != nil {
		return RoleInitiator, err
	}

	if bytes.Compare(hvi[:], peerCommit.HVI[:]) < 0 {
		return RoleResponder, nil
	}
	if bytes.Compare(hvi[:], peerCommit.HVI[:]) > 0 {
		return RoleInitiator, nil
	}
	if bytes.Compare(s.ZID[:], peerCommit.ZID[:]) < 0 {
		return RoleResponder, nil
	}
	return RoleInitiator, nil
}

// runDHPart carries out the DH public-value exchange. Both sides send
// their DHPart message at once and wait for the peer's; role does not
// change the order, so there is no DHPart1-then-DHPart2 sequence.
func (s *Session) runDHPart(role Role) (*big.Int, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("zrtp: generating dh exponent: %w", err)
	}
	s.keyPair = GenerateKeyPair(seed[:])

	msg := &DHPartMessage{PublicValue: EncodePublicValue(s.keyPair.Public)}

	buf, err := MarshalDHPart(msg)
	if err != nil {
		return nil, err
	}

	var peerPublic *big.Int
	_, err = s.retransmit(buf, t2Other, otherTimeout, func(in []byte) bool {
		peer, err := UnmarshalDHPart(in)
		if err != nil {
			return false
		}
		peerPublic = DecodePublicValue(peer.PublicValue)
		return true
	})
	if err != nil {
		return nil, err
	}

	return s.keyPair.SharedSecret(peerPublic), nil
}

// runConfirm exchanges Confirm1/Confirm2, authenticating the exchange
// by checking that the peer's disclosed H0 forwards correctly into the
// hash chain link already accepted in an earlier phase, and that its
// MAC verifies under a key derived from s0. RFC 6189 §5.7.
func (s *Session) runConfirm(role Role, s0 [32]byte) error {
	confirm := &ConfirmMessage{H0: s.hashChain.H0}
	confirm.MAC = macOverS0(s0, confirm.H0[:])

	buf, err := MarshalConfirm(confirm)
	if err != nil {
		return err
	}

	var peerConfirm *ConfirmMessage
	_, err = s.retransmit(buf, t2Other, otherTimeout, func(in []byte) bool {
		peer, err := UnmarshalConfirm(in)
		if err != nil {
			return false
		}
		peerConfirm = peer
		return true
	})
	if err != nil {
		return err
	}

	h2 := sha256Sum(s.peerH3[:])
	h1 := sha256Sum(h2[:])
	if !VerifyLink(peerConfirm.H0, h1) {
		return ErrAuth
	}

	want := macOverS0(s0, peerConfirm.H0[:])
	if !bytes.Equal(want[:], peerConfirm.MAC[:]) {
		return ErrAuth
	}
	return nil
}

// macOverS0 computes an 8-octet MAC tag over data keyed by s0: the
// first 8 octets of SHA-256(s0 || data). It is a keyed hash, not an
// HMAC.
func macOverS0(s0 [32]byte, data []byte) [8]byte {
	sum := sha256Sum(append(s0[:], data...))
	var tag [8]byte
	copy(tag[:], sum[:8])
	return tag
}

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// retransmit sends buf, then resends it on a T1-doubling-to-T2 backoff
// until accept returns true for a message received on s.recv or
// totalTimeout elapses, matching RFC 6189 §5.2's retransmission rule.
func (s *Session) retransmit(buf []byte, t2, totalTimeout time.Duration, accept func([]byte) bool) ([]byte, error) {
	deadline := time.Now().Add(totalTimeout)
	interval := t1Base

	if err := s.send(buf); err != nil {
		return nil, fmt.Errorf("zrtp: send: %w", err)
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case in, ok := <-s.recv:
			if !ok {
				return nil, ErrProtocol
			}
			if accept(in) {
				return in, nil
			}
		case <-timer.C:
			if time.Now().After(deadline) {
				return nil, ErrTimeout
			}
			if err := s.send(buf); err != nil {
				return nil, fmt.Errorf("zrtp: retransmit: %w", err)
			}
			interval *= 2
			if interval > t2 {
				interval = t2
			}
			timer.Reset(interval)
		}
	}
}
