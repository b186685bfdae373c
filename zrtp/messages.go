// Package zrtp implements the RFC 6189 key-agreement state machine that
// runs ahead of the data path to establish keys for a MediaStream,
// modeled structurally on the five-phase sequence
// original_source/include/zrtp/dh_kxchng.hh's zrtp_dh wire struct and
// spec §4.5 describe, and on opd-ai-toxcore/noise/handshake.go's
// role/state-machine shape (initiator/responder, phase advance on
// successful message validation, retransmit on timeout).
package zrtp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ZID is the 12-octet ZRTP identifier each endpoint advertises in its
// Hello message (RFC 6189 §5.3).
type ZID [12]byte

// Message type tags. RFC 6189 §5.2 identifies a message by its 8-octet
// ASCII name inside the header; we use a single leading byte instead,
// checked before the CRC-covered body is decoded so that a reply from
// an earlier or later phase (a straggling retransmission, say) is
// rejected outright rather than risking a partial, accidental decode
// into the wrong struct shape.
const (
	msgTypeHello   byte = 0x01
	msgTypeCommit  byte = 0x02
	msgTypeDHPart  byte = 0x03
	msgTypeConfirm byte = 0x04
)

// HelloMessage is phase-1's discovery announcement (RFC 6189 §5.3):
// version, client identifier, ZID, and the supported algorithm lists.
type HelloMessage struct {
	Version    [4]byte
	ClientID   [16]byte
	ZID        ZID
	// H3 discloses the top of this side's hash chain (RFC 6189
	// §4.4.1.1); later phases disclose H2/H1/H0 and each is checked to
	// hash forward into the link disclosed here.
	H3         [32]byte
	HashAlgos  []string
	CipherAlgos []string
	AuthAlgos  []string
	KeyAgreements []string
	SASTypes   []string
	MAC        [8]byte
}

// CommitMessage is phase-2's algorithm selection plus hvi tie-breaker
// (RFC 6189 §5.4).
type CommitMessage struct {
	ZID      ZID
	Hash     string
	Cipher   string
	Auth     string
	KeyAgree string
	SAS      string
	HVI      [32]byte // hash commitment used to resolve a simultaneous Commit race
	MAC      [8]byte
}

// DHPartMessage mirrors original_source's zrtp_dh wire struct field for
// field: an 8x32-bit hash array, four 8-octet retained-secret IDs, a
// 384-octet public DH value (sized for DH-3072 per spec §3), and an
// 8-octet MAC, closed by a CRC-32 footer RFC 6189 §5.2 requires on
// every ZRTP message.
type DHPartMessage struct {
	Hash        [8]uint32
	RS1ID       [8]byte
	RS2ID       [8]byte
	AuxSecretID [8]byte
	PBXSecretID [8]byte
	PublicValue [384]byte
	MAC         [8]byte
}

// ConfirmMessage is phase-4's authenticated confirmation (RFC 6189 §5.7):
// a hash-chain value plus flags, verified against a MAC derived from s0.
// H0 and Flags are carried in the clear; they are not encrypted.
type ConfirmMessage struct {
	H0    [32]byte
	Flags byte
	MAC   [8]byte
}

// marshalWithCRC serializes payload via binary.Write in network byte
// order, prefixed by msgType and followed by a trailing CRC-32 (IEEE)
// over everything written so far, the footer RFC 6189 §5.2 attaches to
// every ZRTP message.
func marshalWithCRC(msgType byte, payload interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(msgType)
	if err := binary.Write(&buf, binary.BigEndian, payload); err != nil {
		return nil, fmt.Errorf("zrtp: marshal: %w", err)
	}
	crc := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.BigEndian, crc); err != nil {
		return nil, fmt.Errorf("zrtp: marshal crc: %w", err)
	}
	return buf.Bytes(), nil
}

// unmarshalWithCRC reverses marshalWithCRC, rejecting a message whose
// trailing CRC-32 does not match its body or whose leading type byte
// does not match wantType.
func unmarshalWithCRC(buf []byte, wantType byte, payload interface{}) error {
	if len(buf) < 5 {
		return fmt.Errorf("zrtp: message too short for type byte and CRC footer")
	}
	body, footer := buf[:len(buf)-4], buf[len(buf)-4:]
	want := binary.BigEndian.Uint32(footer)
	if got := crc32.ChecksumIEEE(body); got != want {
		return fmt.Errorf("zrtp: CRC mismatch: got %08x want %08x", got, want)
	}
	if body[0] != wantType {
		return fmt.Errorf("zrtp: expected message type %#x, got %#x", wantType, body[0])
	}
	return binary.Read(bytes.NewReader(body[1:]), binary.BigEndian, payload)
}

// MarshalDHPart encodes a DHPartMessage to wire form with its CRC-32
// footer.
func MarshalDHPart(m *DHPartMessage) ([]byte, error) { return marshalWithCRC(msgTypeDHPart, m) }

// UnmarshalDHPart decodes and CRC-validates a DHPartMessage.
func UnmarshalDHPart(buf []byte) (*DHPartMessage, error) {
	m := &DHPartMessage{}
	if err := unmarshalWithCRC(buf, msgTypeDHPart, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalCommit encodes a CommitMessage to wire form with its CRC-32
// footer. The variable-length algorithm fields are carried as fixed
// 4-byte tags rather than strings on the wire; HVI/MAC/ZID stay raw.
type commitWire struct {
	ZID      ZID
	Hash     [4]byte
	Cipher   [4]byte
	Auth     [4]byte
	KeyAgree [4]byte
	SAS      [4]byte
	HVI      [32]byte
	MAC      [8]byte
}

func tag4(s string) [4]byte {
	var t [4]byte
	copy(t[:], s)
	return t
}

func MarshalCommit(m *CommitMessage) ([]byte, error) {
	w := commitWire{
		ZID:      m.ZID,
		Hash:     tag4(m.Hash),
		Cipher:   tag4(m.Cipher),
		Auth:     tag4(m.Auth),
		KeyAgree: tag4(m.KeyAgree),
		SAS:      tag4(m.SAS),
		HVI:      m.HVI,
		MAC:      m.MAC,
	}
	return marshalWithCRC(msgTypeCommit, &w)
}

func UnmarshalCommit(buf []byte) (*CommitMessage, error) {
	var w commitWire
	if err := unmarshalWithCRC(buf, msgTypeCommit, &w); err != nil {
		return nil, err
	}
	return &CommitMessage{
		ZID:      w.ZID,
		Hash:     string(bytes.TrimRight(w.Hash[:], "\x00")),
		Cipher:   string(bytes.TrimRight(w.Cipher[:], "\x00")),
		Auth:     string(bytes.TrimRight(w.Auth[:], "\x00")),
		KeyAgree: string(bytes.TrimRight(w.KeyAgree[:], "\x00")),
		SAS:      string(bytes.TrimRight(w.SAS[:], "\x00")),
		HVI:      w.HVI,
		MAC:      w.MAC,
	}, nil
}

func MarshalConfirm(m *ConfirmMessage) ([]byte, error) { return marshalWithCRC(msgTypeConfirm, m) }

func UnmarshalConfirm(buf []byte) (*ConfirmMessage, error) {
	m := &ConfirmMessage{}
	if err := unmarshalWithCRC(buf, msgTypeConfirm, m); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalHello encodes a HelloMessage. Its algorithm lists are
// variable-length, so unlike the other messages it is framed with an
// explicit count-prefix per list rather than binary.Write over a fixed
// struct.
func MarshalHello(m *HelloMessage) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(msgTypeHello)
	buf.Write(m.Version[:])
	buf.Write(m.ClientID[:])
	buf.Write(m.ZID[:])
	buf.Write(m.H3[:])

	for _, list := range [][]string{m.HashAlgos, m.CipherAlgos, m.AuthAlgos, m.KeyAgreements, m.SASTypes} {
		if len(list) > 255 {
			return nil, fmt.Errorf("zrtp: algorithm list too long")
		}
		buf.WriteByte(byte(len(list)))
		for _, tag := range list {
			t := tag4(tag)
			buf.Write(t[:])
		}
	}
	buf.Write(m.MAC[:])

	crc := crc32.ChecksumIEEE(buf.Bytes())
	if err := binary.Write(&buf, binary.BigEndian, crc); err != nil {
		return nil, fmt.Errorf("zrtp: marshal hello crc: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalHello reverses MarshalHello.
func UnmarshalHello(raw []byte) (*HelloMessage, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("zrtp: hello message too short for CRC footer")
	}
	body, footer := raw[:len(raw)-4], raw[len(raw)-4:]
	if got, want := crc32.ChecksumIEEE(body), binary.BigEndian.Uint32(footer); got != want {
		return nil, fmt.Errorf("zrtp: hello CRC mismatch: got %08x want %08x", got, want)
	}

	r := bytes.NewReader(body)
	var msgType byte
	var err error
	if msgType, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("zrtp: hello type byte: %w", err)
	}
	if msgType != msgTypeHello {
		return nil, fmt.Errorf("zrtp: expected message type %#x, got %#x", msgTypeHello, msgType)
	}

	m := &HelloMessage{}
	if _, err := r.Read(m.Version[:]); err != nil {
		return nil, fmt.Errorf("zrtp: hello version: %w", err)
	}
	if _, err := r.Read(m.ClientID[:]); err != nil {
		return nil, fmt.Errorf("zrtp: hello client id: %w", err)
	}
	if _, err := r.Read(m.ZID[:]); err != nil {
		return nil, fmt.Errorf("zrtp: hello zid: %w", err)
	}
	if _, err := r.Read(m.H3[:]); err != nil {
		return nil, fmt.Errorf("zrtp: hello h3: %w", err)
	}

	lists := make([][]string, 5)
	for i := range lists {
		count, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("zrtp: hello algo count: %w", err)
		}
		list := make([]string, count)
		for j := range list {
			var tag [4]byte
			if _, err := r.Read(tag[:]); err != nil {
				return nil, fmt.Errorf("zrtp: hello algo tag: %w", err)
			}
			list[j] = string(bytes.TrimRight(tag[:], "\x00"))
		}
		lists[i] = list
	}
	m.HashAlgos, m.CipherAlgos, m.AuthAlgos, m.KeyAgreements, m.SASTypes = lists[0], lists[1], lists[2], lists[3], lists[4]

	if _, err := r.Read(m.MAC[:]); err != nil {
		return nil, fmt.Errorf("zrtp: hello mac: %w", err)
	}
	return m, nil
}
