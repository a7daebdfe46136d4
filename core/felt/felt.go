package felt

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/fxamacker/cbor/v2"
)

const (
	Limbs = fp.Limbs // number of 64 bits words needed to represent a Element
	Bits  = fp.Bits  // number of bits needed to represent a Element
	Bytes = fp.Bytes // number of bytes needed to represent a Element
)

const Base16 = 16

var (
	Zero = Felt{}
	One  = *new(Felt).SetUint64(1)
)

var ErrOverflow = errors.New("value does not fit in the field")

var bigIntPool = sync.Pool{
	New: func() any {
		return new(big.Int)
	},
}

// Felt is an element of the Stark field, canonical on the wire as 32 bytes big-endian.
type Felt struct {
	val fp.Element
}

func NewFelt(element *fp.Element) *Felt {
	return &Felt{val: *element}
}

// New is a shorthand for creating a felt from an uint64.
func New(v uint64) *Felt {
	return new(Felt).SetUint64(v)
}

// FromString parses a hex (0x-prefixed) or decimal string, panicking on failure. Only meant for constants.
func FromString(s string) *Felt {
	f, err := new(Felt).SetString(s)
	if err != nil {
		panic(fmt.Sprintf("felt.FromString(%q): %v", s, err))
	}
	return f
}

// FromBytes creates a felt from big-endian bytes, reducing modulo the field prime.
func FromBytes(b []byte) *Felt {
	return new(Felt).SetBytes(b)
}

// Impl returns the underlying field element type
func (z *Felt) Impl() *fp.Element {
	return &z.val
}

func (z *Felt) SetBytes(e []byte) *Felt {
	z.val.SetBytes(e)
	return z
}

// SetBytesCanonical sets the felt from exactly 32 big-endian bytes, rejecting values >= the field prime.
func (z *Felt) SetBytesCanonical(data []byte) error {
	if len(data) != Bytes {
		return fmt.Errorf("invalid felt length %d", len(data))
	}
	return z.val.SetBytesCanonical(data)
}

// SetString accepts 0x-prefixed hex or decimal strings. Values larger than the prime are rejected.
func (z *Felt) SetString(number string) (*Felt, error) {
	vv := bigIntPool.Get().(*big.Int)
	defer bigIntPool.Put(vv)

	var ok bool
	switch {
	case strings.HasPrefix(number, "0x"), strings.HasPrefix(number, "0X"):
		hexStr := number[2:]
		if hexStr == "" {
			return z, errors.New("empty hex string")
		}
		_, ok = vv.SetString(hexStr, Base16)
	default:
		_, ok = vv.SetString(number, 10)
	}
	if !ok {
		return z, fmt.Errorf("can't parse %q into a felt", number)
	}
	if vv.Sign() < 0 || vv.Cmp(fp.Modulus()) >= 0 {
		return z, ErrOverflow
	}
	z.val.SetBigInt(vv)
	return z, nil
}

func (z *Felt) SetUint64(v uint64) *Felt {
	z.val.SetUint64(v)
	return z
}

func (z *Felt) SetBigInt(v *big.Int) *Felt {
	z.val.SetBigInt(v)
	return z
}

func (z *Felt) SetRandom() (*Felt, error) {
	_, err := z.val.SetRandom()
	return z, err
}

func (z *Felt) Set(x *Felt) *Felt {
	z.val.Set(&x.val)
	return z
}

// BigInt returns the regular (non-Montgomery) value of the felt.
func (z *Felt) BigInt(res *big.Int) *big.Int {
	return z.val.BigInt(res)
}

// Uint64 returns the value as uint64 and fails if it does not fit.
func (z *Felt) Uint64() (uint64, error) {
	b := z.Bytes()
	for _, v := range b[:24] {
		if v != 0 {
			return 0, fmt.Errorf("felt %s does not fit in uint64", z.String())
		}
	}
	var res uint64
	for _, v := range b[24:] {
		res = res<<8 | uint64(v)
	}
	return res, nil
}

// String returns the 0x-prefixed hex form without leading zeros.
func (z *Felt) String() string {
	return "0x" + z.val.Text(Base16)
}

// ShortString is used in logs: the first and last four hex digits for long values.
func (z *Felt) ShortString() string {
	hexStr := z.val.Text(Base16)
	if len(hexStr) <= 8 {
		return "0x" + hexStr
	}
	return fmt.Sprintf("0x%s...%s", hexStr[:4], hexStr[len(hexStr)-4:])
}

// Text forwards the call to underlying field element implementation
func (z *Felt) Text(base int) string {
	return z.val.Text(base)
}

func (z *Felt) Equal(x *Felt) bool {
	return z.val.Equal(&x.val)
}

// Marshal returns the 32 byte big-endian encoding.
func (z *Felt) Marshal() []byte {
	return z.val.Marshal()
}

func (z *Felt) Bytes() [32]byte {
	return z.val.Bytes()
}

func (z *Felt) IsOne() bool {
	return z.val.IsOne()
}

func (z *Felt) IsZero() bool {
	return z.val.IsZero()
}

func (z *Felt) Add(x, y *Felt) *Felt {
	z.val.Add(&x.val, &y.val)
	return z
}

func (z *Felt) Sub(x, y *Felt) *Felt {
	z.val.Sub(&x.val, &y.val)
	return z
}

func (z *Felt) Mul(x, y *Felt) *Felt {
	z.val.Mul(&x.val, &y.val)
	return z
}

// Cmp compares the regular values of z and x.
func (z *Felt) Cmp(x *Felt) int {
	return z.val.Cmp(&x.val)
}

// UnmarshalJSON accepts numbers and strings as input, hex strings must be 0x-prefixed.
func (z *Felt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) > fp.Bits*3 {
		return errors.New("value too large (max = Element.Bits * 3)")
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return errors.New("empty felt")
	}
	_, err := z.SetString(s)
	return err
}

func (z Felt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + z.String() + `"`), nil
}

func (z Felt) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *Felt) UnmarshalText(text []byte) error {
	_, err := z.SetString(string(text))
	return err
}

func (z Felt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(z.val.Marshal())
}

func (z *Felt) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	z.val.SetBytes(b)
	return nil
}

// Hex returns the full 64 digit hex encoding, used where fixed width matters.
func (z *Felt) Hex() string {
	b := z.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}
