package trie

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"

	"github.com/NethermindEth/katana-go/core/felt"
)

const MaxPathLen = 251

// Path is a bit string of at most 251 bits. Bits are stored right-aligned in four little-endian
// 64 bit words; bit index 0 of the path is its most significant bit.
type Path struct {
	len   uint8
	words [4]uint64
}

// NewPath builds a path of the given height from the low height bits of f.
func NewPath(height uint8, f *felt.Felt) Path {
	b := f.Bytes()
	var p Path
	for i := range 4 {
		p.words[i] = binary.BigEndian.Uint64(b[32-8*(i+1) : 32-8*i])
	}
	p.len = height
	p.mask()
	return p
}

func (p Path) Len() uint8 {
	return p.len
}

func (p Path) IsEmpty() bool {
	return p.len == 0
}

func (p *Path) mask() {
	for i := range 4 {
		lo := uint(i * 64)
		switch {
		case uint(p.len) <= lo:
			p.words[i] = 0
		case uint(p.len) < lo+64:
			p.words[i] &= (uint64(1) << (uint(p.len) - lo)) - 1
		}
	}
}

// bitAt returns the bit at position pos counted from the least significant end.
func (p Path) bitAt(pos uint) uint8 {
	return uint8(p.words[pos/64] >> (pos % 64) & 1)
}

// Bit returns the i-th most significant bit.
func (p Path) Bit(i uint8) uint8 {
	return p.bitAt(uint(p.len - 1 - i))
}

// MSB returns the most significant bit.
func (p Path) MSB() uint8 {
	return p.Bit(0)
}

func (p Path) shr(n uint) Path {
	if n == 0 {
		return p
	}
	var out Path
	wordShift, bitShift := n/64, n%64
	for i := range 4 {
		src := uint(i) + wordShift
		if src >= 4 {
			break
		}
		out.words[i] = p.words[src] >> bitShift
		if bitShift > 0 && src+1 < 4 {
			out.words[i] |= p.words[src+1] << (64 - bitShift)
		}
	}
	return out
}

func (p Path) shl(n uint) Path {
	if n == 0 {
		return p
	}
	var out Path
	wordShift, bitShift := n/64, n%64
	for i := 3; i >= 0; i-- {
		src := i - int(wordShift)
		if src < 0 {
			break
		}
		out.words[i] = p.words[src] << bitShift
		if bitShift > 0 && src-1 >= 0 {
			out.words[i] |= p.words[src-1] >> (64 - bitShift)
		}
	}
	return out
}

// MSBs returns the n most significant bits.
func (p Path) MSBs(n uint8) Path {
	if n >= p.len {
		return p
	}
	out := p.shr(uint(p.len - n))
	out.len = n
	return out
}

// LSBs drops the n most significant bits and returns the rest.
func (p Path) LSBs(n uint8) Path {
	if n >= p.len {
		return Path{}
	}
	out := p
	out.len = p.len - n
	out.mask()
	return out
}

// Append returns p followed by q.
func (p Path) Append(q Path) Path {
	out := p.shl(uint(q.len))
	for i := range 4 {
		out.words[i] |= q.words[i]
	}
	out.len = p.len + q.len
	return out
}

func (p Path) AppendBit(bit uint8) Path {
	return p.Append(Path{len: 1, words: [4]uint64{uint64(bit)}})
}

// CommonPrefixLen returns the number of leading bits p and q share.
func (p Path) CommonPrefixLen(q Path) uint8 {
	n := min(p.len, q.len)
	a, b := p.MSBs(n), q.MSBs(n)
	for i := 3; i >= 0; i-- {
		if x := a.words[i] ^ b.words[i]; x != 0 {
			highest := uint(i*64) + uint(63-bits.LeadingZeros64(x))
			return n - 1 - uint8(highest)
		}
	}
	return n
}

// IsPrefixOf reports whether every bit of p matches the leading bits of key.
func (p Path) IsPrefixOf(key Path) bool {
	return p.len <= key.len && p.CommonPrefixLen(key) == p.len
}

func (p Path) Equal(q Path) bool {
	return p == q
}

// Felt returns the path bits as a field element.
func (p Path) Felt() felt.Felt {
	var b [32]byte
	for i := range 4 {
		binary.BigEndian.PutUint64(b[32-8*(i+1):32-8*i], p.words[i])
	}
	return *new(felt.Felt).SetBytes(b[:])
}

// Marshal encodes the path as its length byte followed by 32 big-endian bytes.
func (p Path) Marshal() []byte {
	f := p.Felt()
	return append([]byte{p.len}, f.Marshal()...)
}

func (p *Path) Unmarshal(data []byte) error {
	if len(data) != 1+felt.Bytes {
		return fmt.Errorf("invalid path encoding length %d", len(data))
	}
	if data[0] > MaxPathLen {
		return fmt.Errorf("path length %d exceeds %d", data[0], MaxPathLen)
	}
	*p = NewPath(data[0], new(felt.Felt).SetBytes(data[1:]))
	return nil
}

func (p Path) String() string {
	var sb strings.Builder
	sb.Grow(int(p.len))
	for i := range p.len {
		sb.WriteByte('0' + p.Bit(i))
	}
	return fmt.Sprintf("(%d) %s", p.len, sb.String())
}
