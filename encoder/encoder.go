package encoder

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Version of the blob envelope written by MarshalVersioned.
const Version byte = 1

var ErrUnknownVersion = errors.New("unknown encoding version")

var (
	ts = cbor.NewTagSet()
	// https://www.iana.org/assignments/cbor-tags/cbor-tags.xhtml
	// 65536-15309735 	Unassigned
	tagNum  uint64 = 65536
	encMode cbor.EncMode
	decMode cbor.DecMode
	modesMu sync.RWMutex
)

var initialiseEncoder sync.Once

func initEncAndDecModes() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncModeWithTags(ts)
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 10485760, // Set to a reasonably high value, 10MiB
	}.DecModeWithTags(ts)
	if err != nil {
		panic(err)
	}
}

// RegisterType assigns the next free tag to rType so values of that type can be decoded into interfaces.
// Registration order determines tag numbers and must be stable across releases.
func RegisterType(rType reflect.Type) error {
	modesMu.Lock()
	defer modesMu.Unlock()

	if err := ts.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		rType,
		tagNum,
	); err != nil {
		return err
	}
	initEncAndDecModes()
	tagNum++
	return nil
}

func modes() (cbor.EncMode, cbor.DecMode) {
	initialiseEncoder.Do(func() {
		modesMu.Lock()
		defer modesMu.Unlock()
		if encMode == nil {
			initEncAndDecModes()
		}
	})
	modesMu.RLock()
	defer modesMu.RUnlock()
	return encMode, decMode
}

// Marshal returns encoding of param v
func Marshal(v any) ([]byte, error) {
	enc, _ := modes()
	return enc.Marshal(v)
}

// Unmarshal decodes param v from []byte b
func Unmarshal(b []byte, v any) error {
	_, dec := modes()
	return dec.Unmarshal(b, v)
}

// MarshalVersioned prefixes the CBOR encoding of v with the envelope version byte.
// CBOR items are self-delimiting so no explicit length is needed.
func MarshalVersioned(v any) ([]byte, error) {
	enc, _ := modes()
	body, err := enc.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte{Version}, body...), nil
}

// UnmarshalVersioned checks the envelope version and decodes exactly one CBOR item into v.
func UnmarshalVersioned(b []byte, v any) error {
	if len(b) == 0 {
		return io.ErrUnexpectedEOF
	}
	if b[0] != Version {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, b[0])
	}
	_, dec := modes()
	rest, err := dec.UnmarshalFirst(b[1:], v)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%d trailing bytes after value", len(rest))
	}
	return nil
}

type Encoder interface {
	Encode(v any) error
}

// NewEncoder returns a new encoder that writes to w
func NewEncoder(w io.Writer) Encoder {
	enc, _ := modes()
	return enc.NewEncoder(w)
}

type Decoder interface {
	Decode(v any) error
}

// NewDecoder returns a new decoder that reads from r
func NewDecoder(r io.Reader) Decoder {
	_, dec := modes()
	return dec.NewDecoder(r)
}
