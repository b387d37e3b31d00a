package market

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// orderID derives a sale order id from the creation sequence and the listing
// content. The sequence is strictly monotonic, so two listings with identical
// content submitted at the same instant still get distinct ids; the content
// hash keeps ids collision-resistant and non-guessable across deployments.
func orderID(seq int64, asset, assetID string, price *big.Int, seller string) string {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], uint64(seq))

	buf := make([]byte, 0, 8+20+len(assetID)+32+20)
	buf = append(buf, seqBytes[:]...)
	buf = append(buf, common.HexToAddress(asset).Bytes()...)
	buf = append(buf, []byte(assetID)...)
	buf = append(buf, common.BigToHash(price).Bytes()...)
	buf = append(buf, common.HexToAddress(seller).Bytes()...)

	return "0x" + hex.EncodeToString(ethcrypto.Keccak256(buf))
}
