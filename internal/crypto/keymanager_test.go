package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncryptDecryptKey(t *testing.T) {
	const password = "correct horse battery staple"

	t.Run("round trip", func(t *testing.T) {
		blob, err := EncryptKey(testKeyHex, password)
		if err != nil {
			t.Fatalf("EncryptKey: %v", err)
		}

		got, err := DecryptKey(blob, password)
		if err != nil {
			t.Fatalf("DecryptKey: %v", err)
		}
		if got != testKeyHex {
			t.Errorf("decrypted key %q, want %q", got, testKeyHex)
		}
	})

	t.Run("0x prefix is normalised", func(t *testing.T) {
		blob, err := EncryptKey("0x"+testKeyHex, password)
		if err != nil {
			t.Fatalf("EncryptKey: %v", err)
		}
		got, err := DecryptKey(blob, password)
		if err != nil {
			t.Fatalf("DecryptKey: %v", err)
		}
		if got != testKeyHex {
			t.Errorf("decrypted key %q, want %q", got, testKeyHex)
		}
	})

	t.Run("wrong password fails", func(t *testing.T) {
		blob, err := EncryptKey(testKeyHex, password)
		if err != nil {
			t.Fatalf("EncryptKey: %v", err)
		}
		if _, err := DecryptKey(blob, "nope"); err == nil {
			t.Fatal("expected decryption failure")
		}
	})

	t.Run("rejects bad inputs", func(t *testing.T) {
		if _, err := EncryptKey(testKeyHex, ""); err == nil {
			t.Error("empty password accepted")
		}
		if _, err := EncryptKey("zz", password); err == nil {
			t.Error("non-hex key accepted")
		}
		if _, err := EncryptKey("abcd", password); err == nil {
			t.Error("short key accepted")
		}
		if _, err := DecryptKey([]byte("{not json"), password); err == nil {
			t.Error("malformed blob accepted")
		}
		if _, err := DecryptKey([]byte(`{"version":9}`), password); err == nil {
			t.Error("unknown version accepted")
		}
	})
}

func TestLoadKey(t *testing.T) {
	t.Run("raw key wins", func(t *testing.T) {
		got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if got != testKeyHex {
			t.Errorf("LoadKey = %q, want %q", got, testKeyHex)
		}
	})

	t.Run("encrypted key file", func(t *testing.T) {
		const password = "swordfish"
		blob, err := EncryptKey(testKeyHex, password)
		if err != nil {
			t.Fatalf("EncryptKey: %v", err)
		}
		path := filepath.Join(t.TempDir(), "key.json")
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			t.Fatal(err)
		}

		got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: password})
		if err != nil {
			t.Fatalf("LoadKey: %v", err)
		}
		if got != testKeyHex {
			t.Errorf("LoadKey = %q, want %q", got, testKeyHex)
		}
	})

	t.Run("no source configured", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{})
		if err == nil || !strings.Contains(err.Error(), "no private key source") {
			t.Errorf("LoadKey error = %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadKey(KeyConfig{EncryptedKeyPath: "/does/not/exist.json", KeyPassword: "x"})
		if err == nil {
			t.Error("expected error for missing key file")
		}
	})
}
