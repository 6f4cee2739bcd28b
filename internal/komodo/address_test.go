package komodo

import "testing"

func TestAddress_KnownVectors(t *testing.T) {
	vectors := map[string]string{
		"020e46e79a2a8d12b9b5d12c7a91adb4e454edfae43c0a0cb805427d2ac7613fd9": "RXL3YXG2ceaB6C5hfJcN4fvmLH2C34knhA",
		"03b7621ab38a4c2b08f29a1e01f9c37f02e0bc4d1a9e3e9b254b9a9e0a5c0e9d2b": "RKVnTGNBf4kYRfPuzjt1HHKZBoej8BVzG9",
		"0366a87a476a09e05560c5aae0e44d2ab9ba56e69701cee24307871ddd37c86258": "RHound1gvLqhSfvpS1DAPkKp3Y1D4TRxKZ",
	}
	for pubkey, want := range vectors {
		got, err := Address(pubkey)
		if err != nil {
			t.Fatalf("Address(%s): %v", pubkey, err)
		}
		if got != want {
			t.Errorf("Address(%s) = %s, want %s", pubkey, got, want)
		}
	}
}

func TestAddress_RejectsMalformedPubkeys(t *testing.T) {
	bad := []string{
		"",
		"zznothex",
		"02abcd", // too short
		"040e46e79a2a8d12b9b5d12c7a91adb4e454edfae43c0a0cb805427d2ac7613fd9", // uncompressed prefix
	}
	for _, pubkey := range bad {
		if _, err := Address(pubkey); err == nil {
			t.Errorf("Address(%q) should fail", pubkey)
		}
	}
}
