package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

type reader struct {
	b   []byte
	pos int
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, errors.Wrapf(ErrCodec, "unexpected end of input at offset %d (need %d bytes)", r.pos, n)
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) length() (int, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	if int64(n) > int64(len(r.b)-r.pos) && n > 0 {
		// every element takes at least one byte, so a longer length cannot fit
		return 0, errors.Wrapf(ErrCodec, "length %d exceeds remaining input at offset %d", n, r.pos)
	}
	return int(n), nil
}

// DecodeHex parses a hex result (with or without 0x) into a value
func DecodeHex(s string) (Value, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrCodec, "malformed hex: %v", err)
	}
	return Deserialize(b)
}

// Deserialize parses exactly one value from b
func Deserialize(b []byte) (Value, error) {
	r := &reader{b: b}
	v, err := r.value(0)
	if err != nil {
		return nil, err
	}
	if r.pos != len(b) {
		return nil, errors.Wrapf(ErrCodec, "%d trailing bytes after value", len(b)-r.pos)
	}
	return v, nil
}

func (r *reader) value(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, errors.Wrapf(ErrCodec, "value nesting deeper than %d", maxDepth)
	}

	offset := r.pos
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}

	switch Type(tag) {
	case TypeInt:
		b, err := r.next(16)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(b)
		if b[0]&0x80 != 0 {
			n.Sub(n, two128)
		}
		return Int{V: n}, nil
	case TypeUInt:
		b, err := r.next(16)
		if err != nil {
			return nil, err
		}
		return UInt{V: new(big.Int).SetBytes(b)}, nil
	case TypeBuffer:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.next(n)
		if err != nil {
			return nil, err
		}
		return Buffer(append([]byte(nil), b...)), nil
	case TypeTrue:
		return Bool(true), nil
	case TypeFalse:
		return Bool(false), nil
	case TypeStandardPrincipal:
		return r.standardPrincipal()
	case TypeContractPrincipal:
		issuer, err := r.standardPrincipal()
		if err != nil {
			return nil, err
		}
		name, err := r.shortString()
		if err != nil {
			return nil, err
		}
		return ContractPrincipal{Issuer: issuer, Name: name}, nil
	case TypeResponseOk, TypeResponseErr, TypeSome:
		inner, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		switch Type(tag) {
		case TypeResponseOk:
			return ResponseOk{Value: inner}, nil
		case TypeResponseErr:
			return ResponseErr{Value: inner}, nil
		}
		return Some{Value: inner}, nil
	case TypeNone:
		return None{}, nil
	case TypeList:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		list := make(List, 0, n)
		for i := 0; i < n; i++ {
			item, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case TypeTuple:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		tuple := make(Tuple, n)
		prev := ""
		for i := 0; i < n; i++ {
			key, err := r.shortString()
			if err != nil {
				return nil, err
			}
			// keys are serialized strictly ascending
			if i > 0 && key <= prev {
				return nil, errors.Wrapf(ErrCodec, "tuple key %q out of order after %q", key, prev)
			}
			prev = key
			item, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			tuple[key] = item
		}
		return tuple, nil
	case TypeStringASCII:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.next(n)
		if err != nil {
			return nil, err
		}
		return StringASCII(b), nil
	case TypeStringUTF8:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.next(n)
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(b) {
			return nil, errors.Wrapf(ErrCodec, "invalid utf-8 string at offset %d", offset)
		}
		return StringUTF8(b), nil
	}

	return nil, errors.Wrapf(ErrCodec, "unrecognized type tag 0x%02x at offset %d", tag, offset)
}

func (r *reader) standardPrincipal() (StandardPrincipal, error) {
	var p StandardPrincipal
	version, err := r.readByte()
	if err != nil {
		return p, err
	}
	hash, err := r.next(20)
	if err != nil {
		return p, err
	}
	p.Version = version
	copy(p.Hash160[:], hash)
	return p, nil
}

func (r *reader) shortString() (string, error) {
	n, err := r.readByte()
	if err != nil {
		return "", err
	}
	b, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
