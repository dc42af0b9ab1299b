package clarity

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions
const (
	VersionMainnetSingleSig byte = 22
	VersionMainnetMultiSig  byte = 20
	VersionTestnetSingleSig byte = 26
	VersionTestnetMultiSig  byte = 21
)

var big32 = big.NewInt(32)

// c32Encode renders data as a base-32 number, one leading '0' per leading
// zero byte.
func c32Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data)
	mod := new(big.Int)
	var digits []byte
	for n.Sign() > 0 {
		n.DivMod(n, big32, mod)
		digits = append(digits, c32Alphabet[mod.Int64()])
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	return strings.Repeat("0", zeros) + string(digits)
}

func c32Normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}

func c32Decode(s string) ([]byte, error) {
	s = c32Normalize(s)
	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}

	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(c32Alphabet, s[i])
		if idx < 0 {
			return nil, errors.Wrapf(ErrCodec, "invalid c32 character %q", s[i])
		}
		n.Mul(n, big32)
		n.Add(n, big.NewInt(int64(idx)))
	}

	out := make([]byte, zeros, zeros+len(n.Bytes()))
	return append(out, n.Bytes()...), nil
}

func c32Checksum(version byte, data []byte) []byte {
	payload := make([]byte, 0, 1+len(data))
	payload = append(payload, version)
	payload = append(payload, data...)
	return chainhash.DoubleHashB(payload)[:4]
}

// C32CheckEncode encodes version and data with a 4-byte double-SHA256 checksum
func C32CheckEncode(version byte, data []byte) string {
	payload := make([]byte, 0, len(data)+4)
	payload = append(payload, data...)
	payload = append(payload, c32Checksum(version, data)...)
	return string(c32Alphabet[version&0x1f]) + c32Encode(payload)
}

// C32CheckDecode reverses C32CheckEncode and verifies the checksum
func C32CheckDecode(s string) (byte, []byte, error) {
	if len(s) < 2 {
		return 0, nil, errors.Wrap(ErrCodec, "c32check string too short")
	}
	s = c32Normalize(s)
	version := strings.IndexByte(c32Alphabet, s[0])
	if version < 0 {
		return 0, nil, errors.Wrapf(ErrCodec, "invalid c32 version character %q", s[0])
	}

	payload, err := c32Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(payload) < 4 {
		return 0, nil, errors.Wrap(ErrCodec, "c32check payload too short")
	}

	data, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !bytes.Equal(sum, c32Checksum(byte(version), data)) {
		return 0, nil, errors.Wrap(ErrCodec, "c32check checksum mismatch")
	}

	return byte(version), data, nil
}

// C32Address renders a Stacks address ("S" + c32check)
func C32Address(version byte, hash160 [20]byte) string {
	return "S" + C32CheckEncode(version, hash160[:])
}

// C32AddressDecode parses a Stacks address into version and hash160
func C32AddressDecode(addr string) (byte, [20]byte, error) {
	var hash [20]byte
	if len(addr) <= 5 || addr[0] != 'S' {
		return 0, hash, errors.Wrapf(ErrCodec, "invalid stacks address %q", addr)
	}

	version, data, err := C32CheckDecode(addr[1:])
	if err != nil {
		return 0, hash, errors.Wrapf(err, "invalid stacks address %q", addr)
	}
	if len(data) != 20 {
		return 0, hash, errors.Wrapf(ErrCodec, "invalid stacks address %q: hash160 has %d bytes", addr, len(data))
	}

	copy(hash[:], data)
	return version, hash, nil
}
