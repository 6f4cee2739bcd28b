// Package komodo derives KMD-family P2PKH addresses from trading pubkeys.
// Registration submissions must prove the submitted address actually belongs
// to the submitted pubkey, and this derivation is how that is checked.
package komodo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// PubkeyAddrPrefix is the base58check version byte for KMD and its asset
// chains (DOC included).
const PubkeyAddrPrefix = 0x3c

// Address derives the P2PKH address for a compressed secp256k1 pubkey given
// as 66 hex characters starting 02 or 03.
func Address(pubkey string) (string, error) {
	raw, err := hex.DecodeString(pubkey)
	if err != nil {
		return "", fmt.Errorf("decode pubkey: %w", err)
	}
	if len(raw) != 33 || (raw[0] != 0x02 && raw[0] != 0x03) {
		return "", fmt.Errorf("not a compressed secp256k1 pubkey")
	}

	shaSum := sha256.Sum256(raw)
	ripe := ripemd160.New()
	ripe.Write(shaSum[:])

	payload := append([]byte{PubkeyAddrPrefix}, ripe.Sum(nil)...)
	return base58.Encode(append(payload, checksum(payload)...)), nil
}

// checksum is the first four bytes of double SHA-256 over the payload.
func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:4]
}
