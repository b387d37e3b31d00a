package crypto

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// A throwaway key for tests only.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEventSigner(t *testing.T) {
	t.Run("accepts 0x prefix", func(t *testing.T) {
		a, err := NewEventSigner(testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner: %v", err)
		}
		b, err := NewEventSigner("0x" + testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner(0x): %v", err)
		}
		if a.Address() != b.Address() {
			t.Errorf("addresses differ: %s vs %s", a.Address(), b.Address())
		}
	})

	t.Run("rejects invalid key", func(t *testing.T) {
		if _, err := NewEventSigner("not-a-key"); err == nil {
			t.Error("NewEventSigner accepted garbage")
		}
	})

	t.Run("sign and verify round trip", func(t *testing.T) {
		signer, err := NewEventSigner(testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner: %v", err)
		}

		payload := []byte(`{"type":"listed","order_id":"0xabc"}`)
		sig, err := signer.Sign(payload)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if !strings.HasPrefix(sig, "0x") {
			t.Errorf("signature %q missing 0x prefix", sig)
		}

		if err := VerifySignature(payload, sig, signer.Address()); err != nil {
			t.Errorf("VerifySignature: %v", err)
		}
	})

	t.Run("tampered payload fails verification", func(t *testing.T) {
		signer, err := NewEventSigner(testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner: %v", err)
		}

		sig, err := signer.Sign([]byte("original"))
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}

		if err := VerifySignature([]byte("tampered"), sig, signer.Address()); err == nil {
			t.Error("tampered payload verified")
		}
	})

	t.Run("wrong address fails verification", func(t *testing.T) {
		signer, err := NewEventSigner(testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner: %v", err)
		}

		payload := []byte("payload")
		sig, err := signer.Sign(payload)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}

		other := common.HexToAddress("0x0000000000000000000000000000000000000001")
		if err := VerifySignature(payload, sig, other); err == nil {
			t.Error("signature verified against the wrong address")
		}
	})

	t.Run("address matches key", func(t *testing.T) {
		signer, err := NewEventSigner(testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner: %v", err)
		}

		key, err := ethcrypto.HexToECDSA(testKeyHex)
		if err != nil {
			t.Fatalf("HexToECDSA: %v", err)
		}
		want := ethcrypto.PubkeyToAddress(key.PublicKey)
		if signer.Address() != want {
			t.Errorf("Address() = %s, want %s", signer.Address(), want)
		}
	})
}
