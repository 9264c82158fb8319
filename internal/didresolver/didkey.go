package didresolver

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
)

// KeyMethod is the did:key method name.
const KeyMethod = "key"

var errInvalidPublicKeyLength = errors.New("did:key: invalid public key length")

var _ Resolver = (*KeyResolver)(nil)

// KeyResolver resolves did:key DIDs. The document is derived from the DID itself.
type KeyResolver struct{}

// NewKeyResolver creates a new KeyResolver.
func NewKeyResolver() *KeyResolver {
	return &KeyResolver{}
}

func (r *KeyResolver) Resolve(_ context.Context, id did.DID) (*did.Document, error) {
	if id.Method != KeyMethod {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotSupported, id.Method)
	}
	encodedKey := id.ID
	if len(encodedKey) == 0 || encodedKey[0] != 'z' {
		return nil, errors.New("did:key does not start with 'z'")
	}
	mcBytes, err := base58.Decode(encodedKey[1:])
	if err != nil {
		return nil, fmt.Errorf("did:key: invalid base58btc: %w", err)
	}
	reader := bytes.NewReader(mcBytes)
	keyType, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("did:key: invalid multicodec value: %w", err)
	}
	keyBytes, _ := io.ReadAll(reader)

	var key crypto.PublicKey
	switch multicodec.Code(keyType) {
	case multicodec.Ed25519Pub:
		if len(keyBytes) != ed25519.PublicKeySize {
			return nil, errInvalidPublicKeyLength
		}
		key = ed25519.PublicKey(keyBytes)
	case multicodec.P256Pub:
		if key, err = unmarshalEC(elliptic.P256(), 33, keyBytes); err != nil {
			return nil, err
		}
	case multicodec.P384Pub:
		if key, err = unmarshalEC(elliptic.P384(), 49, keyBytes); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("did:key: unsupported public key type: 0x%x", keyType)
	}

	document := did.Document{ID: id}
	keyID := did.DIDURL{DID: id, Fragment: id.ID}
	vm, err := did.NewVerificationMethod(keyID, ssi.JsonWebKey2020, id, key)
	if err != nil {
		return nil, err
	}
	document.AddAssertionMethod(vm)
	document.AddAuthenticationMethod(vm)
	return &document, nil
}

func unmarshalEC(curve elliptic.Curve, expectedLen int, pubKeyBytes []byte) (*ecdsa.PublicKey, error) {
	if len(pubKeyBytes) != expectedLen {
		return nil, errInvalidPublicKeyLength
	}
	x, y := elliptic.UnmarshalCompressed(curve, pubKeyBytes)
	if x == nil {
		return nil, errors.New("did:key: invalid compressed point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// NewDIDKey encodes a public key as a did:key DID.
func NewDIDKey(pub crypto.PublicKey) (*did.DID, error) {
	var code multicodec.Code
	var keyBytes []byte
	switch k := pub.(type) {
	case ed25519.PublicKey:
		code, keyBytes = multicodec.Ed25519Pub, k
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			code = multicodec.P256Pub
		case elliptic.P384():
			code = multicodec.P384Pub
		default:
			return nil, fmt.Errorf("did:key: unsupported curve %s", k.Curve.Params().Name)
		}
		keyBytes = elliptic.MarshalCompressed(k.Curve, k.X, k.Y)
	default:
		return nil, fmt.Errorf("did:key: unsupported key type %T", pub)
	}
	mcBytes := binary.AppendUvarint(nil, uint64(code))
	mcBytes = append(mcBytes, keyBytes...)
	return did.ParseDID("did:key:z" + base58.Encode(mcBytes))
}
