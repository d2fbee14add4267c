package token

import (
	"errors"
	"testing"

	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

func pk(b byte) types.Pubkey {
	var p types.Pubkey
	for i := range p {
		p[i] = b
	}
	return p
}

func rawAccount(pubkey types.Pubkey, data []byte, signer, writable bool) *runtime.AccountInfo {
	lamports := uint64(1_000_000_000)
	return &runtime.AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Data:       data,
		Owner:      types.TokenProgramID,
		IsSigner:   signer,
		IsWritable: writable,
	}
}

func mintAccount(pubkey types.Pubkey, authority types.Pubkey, supply uint64, decimals uint8, writable bool) *runtime.AccountInfo {
	mint := NewMint(decimals, &authority, nil)
	mint.Supply = supply
	return rawAccount(pubkey, mint.Serialize(), false, writable)
}

func balanceAccount(pubkey, mint, owner types.Pubkey, amount uint64, writable bool) *runtime.AccountInfo {
	acc := NewTokenAccount(mint, owner)
	acc.Amount = amount
	return rawAccount(pubkey, acc.Serialize(), false, writable)
}

func signerAccount(pubkey types.Pubkey) *runtime.AccountInfo {
	lamports := uint64(1_000_000_000)
	return &runtime.AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Owner:      types.SystemProgramID,
		IsSigner:   true,
		IsWritable: true,
	}
}

func execute(t *testing.T, data []byte, accounts ...*runtime.AccountInfo) error {
	t.Helper()
	ctx := runtime.NewExecutionContext(types.TokenProgramID, accounts, data, 200_000)
	return New().Execute(ctx, data)
}

func TestInitializeMint(t *testing.T) {
	authority := pk(1)
	mintAcc := rawAccount(pk(2), make([]byte, MintSize), false, true)

	inst := &InitializeMintInstruction{Decimals: 9, MintAuthority: authority}
	if err := execute(t, inst.Encode(), mintAcc); err != nil {
		t.Fatalf("InitializeMint failed: %v", err)
	}

	mint, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		t.Fatal(err)
	}
	if !mint.IsInitialized || mint.Decimals != 9 || mint.Supply != 0 {
		t.Errorf("unexpected mint state: %+v", mint)
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != authority {
		t.Errorf("mint authority = %+v, want %s", mint.MintAuthority, authority)
	}

	// A second initialization must fail.
	if err := execute(t, inst.Encode(), mintAcc); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInitializeAccount3(t *testing.T) {
	authority := pk(1)
	holder := pk(3)
	mintAcc := mintAccount(pk(2), authority, 0, 9, false)
	tokenAcc := rawAccount(pk(4), make([]byte, TokenAccountSize), false, true)

	inst := &InitializeAccount3Instruction{Owner: holder}
	if err := execute(t, inst.Encode(), tokenAcc, mintAcc); err != nil {
		t.Fatalf("InitializeAccount3 failed: %v", err)
	}

	acc, err := DeserializeTokenAccount(tokenAcc.Data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Mint != mintAcc.Pubkey || acc.Owner != holder || acc.Amount != 0 {
		t.Errorf("unexpected token account state: %+v", acc)
	}
	if acc.State != AccountStateInitialized {
		t.Errorf("state = %d, want initialized", acc.State)
	}
}

func TestMintTo(t *testing.T) {
	authority := pk(1)
	mintAcc := mintAccount(pk(2), authority, 0, 9, true)
	dest := balanceAccount(pk(4), mintAcc.Pubkey, pk(3), 0, true)

	inst := &MintToInstruction{Amount: 5_000_000_000}
	if err := execute(t, inst.Encode(), mintAcc, dest, signerAccount(authority)); err != nil {
		t.Fatalf("MintTo failed: %v", err)
	}

	mint, _ := DeserializeMint(mintAcc.Data)
	acc, _ := DeserializeTokenAccount(dest.Data)
	if mint.Supply != 5_000_000_000 {
		t.Errorf("supply = %d, want 5000000000", mint.Supply)
	}
	if acc.Amount != 5_000_000_000 {
		t.Errorf("balance = %d, want 5000000000", acc.Amount)
	}
}

func TestMintToWrongAuthority(t *testing.T) {
	authority := pk(1)
	mintAcc := mintAccount(pk(2), authority, 0, 9, true)
	dest := balanceAccount(pk(4), mintAcc.Pubkey, pk(3), 0, true)

	inst := &MintToInstruction{Amount: 100}
	err := execute(t, inst.Encode(), mintAcc, dest, signerAccount(pk(9)))
	if !errors.Is(err, ErrAuthorityMismatch) {
		t.Errorf("expected ErrAuthorityMismatch, got %v", err)
	}
}

func TestMintToSupplyOverflow(t *testing.T) {
	authority := pk(1)
	mintAcc := mintAccount(pk(2), authority, ^uint64(0)-10, 9, true)
	dest := balanceAccount(pk(4), mintAcc.Pubkey, pk(3), 0, true)

	inst := &MintToInstruction{Amount: 100}
	if err := execute(t, inst.Encode(), mintAcc, dest, signerAccount(authority)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestMintToCheckedDecimalsMismatch(t *testing.T) {
	authority := pk(1)
	mintAcc := mintAccount(pk(2), authority, 0, 9, true)
	dest := balanceAccount(pk(4), mintAcc.Pubkey, pk(3), 0, true)

	inst := &MintToCheckedInstruction{Amount: 100, Decimals: 6}
	if err := execute(t, inst.Encode(), mintAcc, dest, signerAccount(authority)); !errors.Is(err, ErrDecimalsMismatch) {
		t.Errorf("expected ErrDecimalsMismatch, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	owner := pk(1)
	mint := pk(2)
	source := balanceAccount(pk(3), mint, owner, 1000, true)
	dest := balanceAccount(pk(4), mint, pk(5), 0, true)

	inst := &TransferInstruction{Amount: 400}
	if err := execute(t, inst.Encode(), source, dest, signerAccount(owner)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	src, _ := DeserializeTokenAccount(source.Data)
	dst, _ := DeserializeTokenAccount(dest.Data)
	if src.Amount != 600 || dst.Amount != 400 {
		t.Errorf("balances after transfer: src=%d dst=%d", src.Amount, dst.Amount)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	owner := pk(1)
	mint := pk(2)
	source := balanceAccount(pk(3), mint, owner, 100, true)
	dest := balanceAccount(pk(4), mint, pk(5), 0, true)

	inst := &TransferInstruction{Amount: 101}
	if err := execute(t, inst.Encode(), source, dest, signerAccount(owner)); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestTransferMintMismatch(t *testing.T) {
	owner := pk(1)
	source := balanceAccount(pk(3), pk(2), owner, 100, true)
	dest := balanceAccount(pk(4), pk(9), pk(5), 0, true)

	inst := &TransferInstruction{Amount: 10}
	if err := execute(t, inst.Encode(), source, dest, signerAccount(owner)); !errors.Is(err, ErrMintMismatch) {
		t.Errorf("expected ErrMintMismatch, got %v", err)
	}
}

func TestTransferWrongOwner(t *testing.T) {
	mint := pk(2)
	source := balanceAccount(pk(3), mint, pk(1), 100, true)
	dest := balanceAccount(pk(4), mint, pk(5), 0, true)

	inst := &TransferInstruction{Amount: 10}
	if err := execute(t, inst.Encode(), source, dest, signerAccount(pk(7))); !errors.Is(err, ErrOwnerMismatch) {
		t.Errorf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestTransferCheckedValidatesMint(t *testing.T) {
	owner := pk(1)
	authority := pk(6)
	mintAcc := mintAccount(pk(2), authority, 0, 9, false)
	source := balanceAccount(pk(3), mintAcc.Pubkey, owner, 1000, true)
	dest := balanceAccount(pk(4), mintAcc.Pubkey, pk(5), 0, true)

	good := &TransferCheckedInstruction{Amount: 100, Decimals: 9}
	if err := execute(t, good.Encode(), source, mintAcc, dest, signerAccount(owner)); err != nil {
		t.Fatalf("TransferChecked failed: %v", err)
	}

	bad := &TransferCheckedInstruction{Amount: 100, Decimals: 2}
	if err := execute(t, bad.Encode(), source, mintAcc, dest, signerAccount(owner)); !errors.Is(err, ErrDecimalsMismatch) {
		t.Errorf("expected ErrDecimalsMismatch, got %v", err)
	}
}

func TestTransferToSelf(t *testing.T) {
	owner := pk(1)
	authority := pk(6)
	mintAcc := mintAccount(pk(2), authority, 5000, 9, false)
	account := balanceAccount(pk(3), mintAcc.Pubkey, owner, 5000, true)

	// Duplicate account metas collapse to a single shared AccountInfo, so
	// the source and destination positions read and write the same buffer.
	inst := &TransferCheckedInstruction{Amount: 2000, Decimals: 9}
	if err := execute(t, inst.Encode(), account, mintAcc, account, signerAccount(owner)); err != nil {
		t.Fatalf("self TransferChecked failed: %v", err)
	}

	acc, _ := DeserializeTokenAccount(account.Data)
	if acc.Amount != 5000 {
		t.Errorf("balance after self-transfer = %d, want 5000", acc.Amount)
	}

	// Validation still applies even though nothing moves.
	over := &TransferCheckedInstruction{Amount: 5001, Decimals: 9}
	if err := execute(t, over.Encode(), account, mintAcc, account, signerAccount(owner)); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdrawn self-transfer = %v, want ErrInsufficientFunds", err)
	}
}

func TestTransferToSelfKeepsDelegatedAmount(t *testing.T) {
	owner := pk(1)
	delegate := pk(7)
	mint := pk(2)

	acc := NewTokenAccount(mint, owner)
	acc.Amount = 1000
	acc.Delegate = COption{IsSome: true, Value: delegate}
	acc.DelegatedAmount = 300
	account := rawAccount(pk(3), acc.Serialize(), false, true)

	inst := &TransferInstruction{Amount: 200}
	if err := execute(t, inst.Encode(), account, account, signerAccount(delegate)); err != nil {
		t.Fatalf("delegated self-transfer failed: %v", err)
	}

	after, _ := DeserializeTokenAccount(account.Data)
	if after.Amount != 1000 || after.DelegatedAmount != 300 {
		t.Errorf("after self-transfer: amount=%d delegated=%d, want 1000/300",
			after.Amount, after.DelegatedAmount)
	}
}

// selfMintAccount builds a token account stored at its own mint address,
// sized so the buffer also decodes as an initialized mint.
func selfMintAccount(pubkey, owner types.Pubkey, amount uint64) *runtime.AccountInfo {
	acc := NewTokenAccount(pubkey, owner)
	acc.Amount = amount
	return rawAccount(pubkey, acc.Serialize(), false, true)
}

func TestMintToDestinationAliasesMint(t *testing.T) {
	owner := pk(1)
	account := selfMintAccount(pk(2), owner, 0)

	inst := &MintToInstruction{Amount: 100}
	err := execute(t, inst.Encode(), account, account, signerAccount(owner))
	if !errors.Is(err, ErrInvalidMint) {
		t.Errorf("MintTo with aliased mint = %v, want ErrInvalidMint", err)
	}
}

func TestBurnSourceAliasesMint(t *testing.T) {
	owner := pk(1)
	account := selfMintAccount(pk(2), owner, 100)

	inst := &BurnInstruction{Amount: 50}
	err := execute(t, inst.Encode(), account, account, signerAccount(owner))
	if !errors.Is(err, ErrInvalidMint) {
		t.Errorf("Burn with aliased mint = %v, want ErrInvalidMint", err)
	}
}

func TestTransferFrozenAccount(t *testing.T) {
	owner := pk(1)
	mint := pk(2)
	source := balanceAccount(pk(3), mint, owner, 100, true)

	frozen := NewTokenAccount(mint, owner)
	frozen.State = AccountStateFrozen
	copy(source.Data, frozen.Serialize())

	dest := balanceAccount(pk(4), mint, pk(5), 0, true)
	inst := &TransferInstruction{Amount: 10}
	if err := execute(t, inst.Encode(), source, dest, signerAccount(owner)); !errors.Is(err, ErrAccountFrozen) {
		t.Errorf("expected ErrAccountFrozen, got %v", err)
	}
}

func TestBurn(t *testing.T) {
	owner := pk(1)
	authority := pk(6)
	mintAcc := mintAccount(pk(2), authority, 1000, 9, true)
	source := balanceAccount(pk(3), mintAcc.Pubkey, owner, 500, true)

	inst := &BurnInstruction{Amount: 200}
	if err := execute(t, inst.Encode(), source, mintAcc, signerAccount(owner)); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}

	src, _ := DeserializeTokenAccount(source.Data)
	mint, _ := DeserializeMint(mintAcc.Data)
	if src.Amount != 300 {
		t.Errorf("balance = %d, want 300", src.Amount)
	}
	if mint.Supply != 800 {
		t.Errorf("supply = %d, want 800", mint.Supply)
	}
}

func TestMintRoundTrip(t *testing.T) {
	authority := pk(1)
	freeze := pk(2)
	mint := NewMint(9, &authority, &freeze)
	mint.Supply = 12345

	decoded, err := DeserializeMint(mint.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Supply != 12345 || decoded.Decimals != 9 || !decoded.IsInitialized {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
	if !decoded.FreezeAuthority.IsSome || decoded.FreezeAuthority.Value != freeze {
		t.Errorf("freeze authority lost in round trip")
	}
}
