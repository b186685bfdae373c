package zrtp

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HashChain is the rolling H0..H3 hash chain RFC 6189 §4.4.1.1
// specifies: H3 is generated randomly, and each Hn = SHA-256(Hn+1),
// so the chain is revealed one link per phase and each revealed link
// is independently verifiable against the one disclosed before it.
type HashChain struct {
	H0, H1, H2, H3 [32]byte
}

// NewHashChain draws a fresh H3 and derives the rest of the chain.
func NewHashChain() (*HashChain, error) {
	hc := &HashChain{}
	if _, err := rand.Read(hc.H3[:]); err != nil {
		return nil, fmt.Errorf("zrtp: generating H3: %w", err)
	}
	hc.H2 = sha256.Sum256(hc.H3[:])
	hc.H1 = sha256.Sum256(hc.H2[:])
	hc.H0 = sha256.Sum256(hc.H1[:])
	return hc, nil
}

// VerifyLink checks that child hashes forward to parent, the check run
// each time a later phase discloses the next link in the chain.
func VerifyLink(parent, child [32]byte) bool {
	return sha256.Sum256(child[:]) == parent
}

// deriveS0 mixes the DH shared secret with both sides' hash-chain
// commitments (H3) and ZIDs into the master secret s0, per RFC 6189
// §4.4.1.4's KDF_Context / total_hash construction, condensed here to
// a single SHA-256 over the concatenation rather than the RFC's exact
// byte layout.
func deriveS0(sharedSecret []byte, initiatorH3, responderH3 [32]byte, initiatorZID, responderZID ZID) [32]byte {
	h := sha256.New()
	h.Write(sharedSecret)
	h.Write(initiatorH3[:])
	h.Write(responderH3[:])
	h.Write(initiatorZID[:])
	h.Write(responderZID[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// KeySet is the set of directional keys and MAC keys ZRTP exports to
// the SRTP layer once the handshake completes (RFC 6189 §4.5.3),
// each derived from s0 via HKDF with a label distinguishing its role.
type KeySet struct {
	SRTPKeyInitiator  [16]byte
	SRTPKeyResponder  [16]byte
	SRTPSaltInitiator [14]byte
	SRTPSaltResponder [14]byte
	MACKeyInitiator   [20]byte
	MACKeyResponder   [20]byte
}

// DeriveKeys expands s0 into a KeySet via HKDF-SHA256, one label per
// field, the ecosystem's standard KDF rather than RFC 6189's own
// hand-rolled "KDF" function (s0, label, KDF_Context, length) — the
// pack consistently reaches for golang.org/x/crypto/hkdf wherever a
// shared-secret-to-keys expansion is needed.
func DeriveKeys(s0 [32]byte, kdfContext []byte) (*KeySet, error) {
	ks := &KeySet{}
	fields := []struct {
		label string
		out   []byte
	}{
		{"Initiator SRTP master key", ks.SRTPKeyInitiator[:]},
		{"Responder SRTP master key", ks.SRTPKeyResponder[:]},
		{"Initiator SRTP master salt", ks.SRTPSaltInitiator[:]},
		{"Responder SRTP master salt", ks.SRTPSaltResponder[:]},
		{"Initiator HMAC key", ks.MACKeyInitiator[:]},
		{"Responder HMAC key", ks.MACKeyResponder[:]},
	}
	for _, f := range fields {
		r := hkdf.New(sha256.New, s0[:], kdfContext, []byte(f.label))
		if _, err := io.ReadFull(r, f.out); err != nil {
			return nil, fmt.Errorf("zrtp: deriving %q: %w", f.label, err)
		}
	}
	return ks, nil
}

// RenderSAS turns s0 into the four-character base-32 Short
// Authentication String both parties read aloud to each other (RFC
// 6189 §4.5.2's sas_value, simplified to a fixed base-32 alphabet
// rather than the RFC's word-list scheme).
func RenderSAS(s0 [32]byte) string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var sas [4]byte
	for i := range sas {
		sas[i] = alphabet[int(s0[i])%len(alphabet)]
	}
	return string(sas[:])
}
