package token

import (
	"github.com/sing3demons/weather/kp/internal/apperr"
)

// es256ComponentSize is the byte width of each signature half for ES256.
const es256ComponentSize = 32

// derToJose converts an ASN.1 DER ECDSA signature into the fixed-width R||S
// form JWS carries. Input that is already exactly two components wide and
// does not open with a SEQUENCE tag is taken as converted and copied through.
func derToJose(sig []byte, componentSize int) ([]byte, error) {
	if len(sig) == 2*componentSize && sig[0] != 0x30 {
		out := make([]byte, len(sig))
		copy(out, sig)
		return out, nil
	}

	pos := 0
	if pos >= len(sig) || sig[pos] != 0x30 {
		return nil, apperr.NewFormatError("signature is not a DER sequence", nil)
	}
	pos++
	seqLen, err := readLength(sig, &pos)
	if err != nil {
		return nil, err
	}
	if pos+seqLen != len(sig) {
		return nil, apperr.NewFormatError("signature sequence length mismatch", nil)
	}

	r, err := readInteger(sig, &pos, componentSize)
	if err != nil {
		return nil, err
	}
	s, err := readInteger(sig, &pos, componentSize)
	if err != nil {
		return nil, err
	}
	if pos != len(sig) {
		return nil, apperr.NewFormatError("trailing bytes after signature", nil)
	}

	out := make([]byte, 2*componentSize)
	copy(out[componentSize-len(r):componentSize], r)
	copy(out[2*componentSize-len(s):], s)
	return out, nil
}

// readLength decodes a DER length at *pos, supporting the short form and
// long forms of one to four length bytes.
func readLength(buf []byte, pos *int) (int, error) {
	if *pos >= len(buf) {
		return 0, apperr.NewFormatError("signature truncated", nil)
	}
	b := buf[*pos]
	*pos++
	if b&0x80 == 0 {
		return int(b), nil
	}
	n := int(b & 0x7f)
	if n == 0 || n > 4 {
		return 0, apperr.NewFormatError("unsupported DER length", nil)
	}
	if *pos+n > len(buf) {
		return 0, apperr.NewFormatError("signature truncated", nil)
	}
	length := 0
	for i := 0; i < n; i++ {
		length = length<<8 | int(buf[*pos])
		*pos++
	}
	return length, nil
}

// readInteger decodes a DER INTEGER and returns its big-endian value with a
// single sign-padding zero stripped.
func readInteger(buf []byte, pos *int, componentSize int) ([]byte, error) {
	if *pos >= len(buf) || buf[*pos] != 0x02 {
		return nil, apperr.NewFormatError("expected DER integer", nil)
	}
	*pos++
	length, err := readLength(buf, pos)
	if err != nil {
		return nil, err
	}
	if length <= 0 || *pos+length > len(buf) {
		return nil, apperr.NewFormatError("signature truncated", nil)
	}
	value := buf[*pos : *pos+length]
	*pos += length
	if value[0] == 0x00 {
		value = value[1:]
	}
	if len(value) > componentSize {
		return nil, apperr.NewFormatError("signature integer wider than component", nil)
	}
	return value, nil
}
