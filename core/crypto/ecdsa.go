package crypto

import (
	"errors"
	"math/big"

	"github.com/NethermindEth/katana-go/core/felt"
	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
	"golang.org/x/crypto/sha3"
)

var (
	ErrInvalidPublicKey  = errors.New("not a valid public key")
	ErrInvalidPrivateKey = errors.New("not a valid private key")
)

// curveB is the b coefficient of the stark curve y^2 = x^3 + x + b.
var curveB = felt.FromString("0x6f21413efbe40de150e596d72f7a8c5609ad26c15c915c1f4cdfcb99cee9e89")

type Signature struct {
	R felt.Felt
	S felt.Felt
}

// PublicKey is the x coordinate of a point on the stark curve.
type PublicKey struct {
	x felt.Felt
}

func NewPublicKey(x *felt.Felt) PublicKey {
	return PublicKey{x: *x}
}

func (k PublicKey) X() felt.Felt {
	return k.x
}

// points returns both curve points with the key's x coordinate.
func (k PublicKey) points() ([2]ecdsa.PublicKey, error) {
	var keys [2]ecdsa.PublicKey

	x := k.x.Impl()
	var rhs, x3 fp.Element
	x3.Square(x).Mul(&x3, x)
	rhs.Add(&x3, x).Add(&rhs, curveB.Impl())

	var y fp.Element
	if y.Sqrt(&rhs) == nil {
		return keys, ErrInvalidPublicKey
	}
	keys[0].A = starkcurve.G1Affine{X: *x, Y: y}
	keys[1].A = starkcurve.G1Affine{X: *x}
	keys[1].A.Y.Neg(&y)
	return keys, nil
}

// Verify checks a signature over keccak(msg). The key only fixes x, so both y candidates are tried.
func (k PublicKey) Verify(sig *Signature, msg *felt.Felt) (bool, error) {
	keys, err := k.points()
	if err != nil {
		return false, err
	}

	sigBin := make([]byte, 0, 2*felt.Bytes)
	sigBin = append(sigBin, sig.R.Marshal()...)
	sigBin = append(sigBin, sig.S.Marshal()...)
	for i := range keys {
		ok, err := keys[i].Verify(sigBin, msg.Marshal(), sha3.NewLegacyKeccak256())
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type PrivateKey struct {
	scalar big.Int
	inner  ecdsa.PrivateKey
	public PublicKey
}

// NewPrivateKey builds a signing key from a scalar in [1, n).
func NewPrivateKey(secret *felt.Felt) (*PrivateKey, error) {
	var scalar big.Int
	secret.BigInt(&scalar)
	if scalar.Sign() == 0 || scalar.Cmp(fr.Modulus()) >= 0 {
		return nil, ErrInvalidPrivateKey
	}

	_, g := starkcurve.Generators()
	var pub ecdsa.PublicKey
	pub.A.ScalarMultiplication(&g, &scalar)

	var scalarBytes [fr.Bytes]byte
	scalar.FillBytes(scalarBytes[:])

	key := &PrivateKey{scalar: scalar}
	buf := append(pub.Bytes(), scalarBytes[:]...)
	if _, err := key.inner.SetBytes(buf); err != nil {
		return nil, err
	}
	key.public = PublicKey{x: *felt.NewFelt(&pub.A.X)}
	return key, nil
}

func (k *PrivateKey) PublicKey() PublicKey {
	return k.public
}

// Secret returns the scalar as a felt.
func (k *PrivateKey) Secret() felt.Felt {
	var f felt.Felt
	f.SetBigInt(&k.scalar)
	return f
}

func (k *PrivateKey) Sign(msg *felt.Felt) (*Signature, error) {
	sigBin, err := k.inner.Sign(msg.Marshal(), sha3.NewLegacyKeccak256())
	if err != nil {
		return nil, err
	}
	sig := new(Signature)
	sig.R.SetBytes(sigBin[:fr.Bytes])
	sig.S.SetBytes(sigBin[fr.Bytes:])
	return sig, nil
}
