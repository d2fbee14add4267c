package runtime

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

func testPubkey(b byte) types.Pubkey {
	var pk types.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	program := testPubkey(7)
	seeds := [][]byte{[]byte("vault"), {1, 2, 3}}

	addr1, bump1, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}
	addr2, bump2, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Error("derivation is not deterministic")
	}
}

func TestFindProgramAddressBumpRoundTrip(t *testing.T) {
	program := testPubkey(9)
	seeds := [][]byte{[]byte("mint"), []byte("authority")}

	addr, bump, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress failed: %v", err)
	}

	// The returned bump must reproduce the same address.
	withBump := append(append([][]byte{}, seeds...), []byte{bump})
	direct, err := CreateProgramAddress(withBump, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress with found bump failed: %v", err)
	}
	if direct != addr {
		t.Errorf("bump round trip mismatch: %s vs %s", direct, addr)
	}
}

func TestFindProgramAddressDiffersByProgram(t *testing.T) {
	seeds := [][]byte{[]byte("shared")}
	addrA, _, err := FindProgramAddress(seeds, testPubkey(1))
	if err != nil {
		t.Fatal(err)
	}
	addrB, _, err := FindProgramAddress(seeds, testPubkey(2))
	if err != nil {
		t.Fatal(err)
	}
	if addrA == addrB {
		t.Error("different programs derived the same address")
	}
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	program := testPubkey(3)

	longSeed := bytes.Repeat([]byte{0xAA}, MaxSeedLen+1)
	if _, err := CreateProgramAddress([][]byte{longSeed}, program); !errors.Is(err, ErrSeedTooLong) {
		t.Errorf("expected ErrSeedTooLong, got %v", err)
	}

	many := make([][]byte, MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}
	if _, err := CreateProgramAddress(many, program); !errors.Is(err, ErrTooManySeeds) {
		t.Errorf("expected ErrTooManySeeds, got %v", err)
	}
}

func TestVerifyDerivedAddress(t *testing.T) {
	program := testPubkey(5)
	seeds := [][]byte{[]byte("config")}

	addr, _, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyDerivedAddress(addr, seeds, program); err != nil {
		t.Errorf("valid address rejected: %v", err)
	}
	if err := VerifyDerivedAddress(testPubkey(6), seeds, program); !errors.Is(err, ErrSeedMismatch) {
		t.Errorf("expected ErrSeedMismatch, got %v", err)
	}
}

func TestDeriveAssociatedTokenAddress(t *testing.T) {
	mint := testPubkey(10)
	ownerA := testPubkey(11)
	ownerB := testPubkey(12)

	addrA, _, err := DeriveAssociatedTokenAddress(ownerA, types.TokenProgramID, mint)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	addrA2, _, err := DeriveAssociatedTokenAddress(ownerA, types.TokenProgramID, mint)
	if err != nil {
		t.Fatal(err)
	}
	if addrA != addrA2 {
		t.Error("associated token address is not deterministic")
	}

	addrB, _, err := DeriveAssociatedTokenAddress(ownerB, types.TokenProgramID, mint)
	if err != nil {
		t.Fatal(err)
	}
	if addrA == addrB {
		t.Error("different owners derived the same associated token address")
	}
}

func TestDeriveMetadataAddress(t *testing.T) {
	metadataProgram := testPubkey(20)
	mintA := testPubkey(21)
	mintB := testPubkey(22)

	addrA, _, err := DeriveMetadataAddress(metadataProgram, mintA)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}
	addrB, _, err := DeriveMetadataAddress(metadataProgram, mintB)
	if err != nil {
		t.Fatal(err)
	}
	if addrA == addrB {
		t.Error("different mints derived the same metadata address")
	}
}
