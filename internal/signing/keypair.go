package signing

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/NethermindEth/starknet.go/curve"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
)

// KeyPairSigner signs canonical order payloads with an asymmetric key.
type KeyPairSigner interface {
	// SignOrder returns the hex signature over the order fields.
	SignOrder(fields map[string]string) (string, error)
	// PublicKey returns the hex public key registered with the exchange.
	PublicKey() string
}

// starkOrder is the order of the Stark curve group. Private keys live in [1, starkOrder).
var starkOrder, _ = new(big.Int).SetString("800000000000010ffffffffffffffffb781126dcae7b2321e66a241adc64d2f", 16)

// StarkSigner implements KeyPairSigner with ECDSA on the Stark curve.
type StarkSigner struct {
	private *big.Int
	publicX *big.Int
}

// NewStarkSigner parses a hex private key. A missing, malformed or out of
// range key is a configuration error.
func NewStarkSigner(hexKey string) (*StarkSigner, error) {
	if hexKey == "" {
		return nil, errors.New(errors.ErrCodeMissingSecret, "order signing key is required")
	}

	private, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(hexKey), "0x"), 16)
	if !ok {
		return nil, errors.New(errors.ErrCodeConfiguration, "order signing key is not valid hex")
	}

	if private.Sign() <= 0 || private.Cmp(starkOrder) >= 0 {
		return nil, errors.New(errors.ErrCodeConfiguration, "order signing key is outside the Stark curve order")
	}

	x, _ := curve.PrivateKeyToPoint(private)

	return &StarkSigner{private: private, publicX: x}, nil
}

// SignOrder implements KeyPairSigner. The signature is r and s as two
// zero-padded 32 byte hex words.
func (s *StarkSigner) SignOrder(fields map[string]string) (string, error) {
	r, sig, err := curve.Sign(OrderHash(fields), s.private)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConfiguration, "failed to sign order", err)
	}

	return fmt.Sprintf("%064x%064x", r, sig), nil
}

// PublicKey implements KeyPairSigner. It is the x coordinate of the public point.
func (s *StarkSigner) PublicKey() string {
	return fmt.Sprintf("%064x", s.publicX)
}

// OrderHash is the Pedersen hash over the Starknet Keccak of the canonical
// payload, a value inside the Stark field.
func OrderHash(fields map[string]string) *big.Int {
	digest := curve.StarknetKeccak([]byte(CanonicalPayload(fields)))

	return curve.ComputeHashOnElements([]*big.Int{digest.BigInt(new(big.Int))})
}

// CanonicalPayload joins fields as key=value pairs sorted by key, separated by &.
func CanonicalPayload(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}

	return strings.Join(parts, "&")
}
