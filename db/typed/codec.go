package typed

import (
	"encoding/binary"
	"fmt"

	"github.com/NethermindEth/katana-go/core/felt"
	"github.com/NethermindEth/katana-go/encoder"
)

type KeyCodec[K any] interface {
	EncodeKey(K) []byte
	DecodeKey([]byte) (K, error)
}

type ValueCodec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

func errSize(want, got int) error {
	return fmt.Errorf("expected %d bytes, got %d", want, got)
}

type uint64Codec struct{}

// Uint64 encodes big-endian so numeric and byte order agree.
var Uint64 uint64Codec

func (uint64Codec) EncodeKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (uint64Codec) DecodeKey(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errSize(8, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c uint64Codec) Encode(v uint64) ([]byte, error) { return c.EncodeKey(v), nil }
func (c uint64Codec) Decode(b []byte) (uint64, error) { return c.DecodeKey(b) }

type feltCodec struct{}

var Felt feltCodec

func (feltCodec) EncodeKey(v felt.Felt) []byte {
	return v.Marshal()
}

func (feltCodec) DecodeKey(b []byte) (felt.Felt, error) {
	var f felt.Felt
	if len(b) != felt.Bytes {
		return f, errSize(felt.Bytes, len(b))
	}
	err := f.SetBytesCanonical(b)
	return f, err
}

func (c feltCodec) Encode(v felt.Felt) ([]byte, error) { return c.EncodeKey(v), nil }
func (c feltCodec) Decode(b []byte) (felt.Felt, error) { return c.DecodeKey(b) }

// FeltPair is a composite key of two felts.
type FeltPair struct {
	First, Second felt.Felt
}

type feltPairCodec struct{}

var FeltPairKey feltPairCodec

func (feltPairCodec) EncodeKey(v FeltPair) []byte {
	return append(v.First.Marshal(), v.Second.Marshal()...)
}

func (feltPairCodec) DecodeKey(b []byte) (FeltPair, error) {
	var p FeltPair
	if len(b) != 2*felt.Bytes {
		return p, errSize(2*felt.Bytes, len(b))
	}
	if err := p.First.SetBytesCanonical(b[:felt.Bytes]); err != nil {
		return p, err
	}
	return p, p.Second.SetBytesCanonical(b[felt.Bytes:])
}

type bytesCodec struct{}

var Bytes bytesCodec

func (bytesCodec) EncodeKey(v []byte) []byte          { return v }
func (bytesCodec) DecodeKey(b []byte) ([]byte, error) { return b, nil }
func (bytesCodec) Encode(v []byte) ([]byte, error)    { return v, nil }
func (bytesCodec) Decode(b []byte) ([]byte, error)    { return b, nil }

type cborCodec[V any] struct{}

// Cbor stores values as versioned CBOR blobs.
func Cbor[V any]() ValueCodec[V] {
	return cborCodec[V]{}
}

func (cborCodec[V]) Encode(v V) ([]byte, error) {
	return encoder.MarshalVersioned(v)
}

func (cborCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := encoder.UnmarshalVersioned(b, &v)
	return v, err
}
