package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EventSigner signs marketplace event payloads with the platform's secp256k1
// key. The signature covers the keccak256 digest of the canonical payload
// bytes, so any indexer holding the platform address can verify feed entries
// without contacting the service.
type EventSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewEventSigner creates an EventSigner from a hex-encoded private key
// (with or without 0x prefix).
func NewEventSigner(privateKeyHex string) (*EventSigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}

	return &EventSigner{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the platform address corresponding to the signing key.
func (s *EventSigner) Address() common.Address {
	return s.address
}

// Sign returns the hex-encoded signature over keccak256(payload).
func (s *EventSigner) Sign(payload []byte) (string, error) {
	digest := ethcrypto.Keccak256(payload)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign payload: %w", err)
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// VerifySignature checks that signatureHex over payload recovers the given
// address. It returns nil when the signature is valid.
func VerifySignature(payload []byte, signatureHex string, address common.Address) error {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return fmt.Errorf("crypto: expected 65-byte signature, got %d bytes", len(sigBytes))
	}

	digest := ethcrypto.Keccak256(payload)

	pubKey, err := ethcrypto.SigToPub(digest, sigBytes)
	if err != nil {
		return fmt.Errorf("crypto: recover public key: %w", err)
	}

	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	if recovered != address {
		return fmt.Errorf("crypto: signature from %s, expected %s", recovered.Hex(), address.Hex())
	}
	return nil
}
