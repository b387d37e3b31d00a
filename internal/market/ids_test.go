package market

import (
	"math/big"
	"strings"
	"testing"
)

func TestOrderID(t *testing.T) {
	base := func() string {
		return orderID(1, assetAddr, "7", big.NewInt(1000), sellerAddr)
	}

	t.Run("deterministic", func(t *testing.T) {
		if base() != base() {
			t.Error("same inputs produced different ids")
		}
	})

	t.Run("format", func(t *testing.T) {
		id := base()
		if !strings.HasPrefix(id, "0x") {
			t.Errorf("id %q missing 0x prefix", id)
		}
		if len(id) != 2+64 {
			t.Errorf("id length = %d, want 66", len(id))
		}
	})

	t.Run("distinct per input", func(t *testing.T) {
		variants := map[string]string{
			"seq":     orderID(2, assetAddr, "7", big.NewInt(1000), sellerAddr),
			"asset":   orderID(1, "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "7", big.NewInt(1000), sellerAddr),
			"assetID": orderID(1, assetAddr, "8", big.NewInt(1000), sellerAddr),
			"price":   orderID(1, assetAddr, "7", big.NewInt(1001), sellerAddr),
			"seller":  orderID(1, assetAddr, "7", big.NewInt(1000), buyerAddr),
		}
		for field, id := range variants {
			if id == base() {
				t.Errorf("changing %s did not change the id", field)
			}
		}
	})

	t.Run("identical content distinct seq", func(t *testing.T) {
		a := orderID(1, assetAddr, "7", big.NewInt(1000), sellerAddr)
		b := orderID(2, assetAddr, "7", big.NewInt(1000), sellerAddr)
		if a == b {
			t.Error("identical listings with distinct sequences share an id")
		}
	})
}
