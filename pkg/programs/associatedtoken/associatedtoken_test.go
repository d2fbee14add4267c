package associatedtoken

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// programRouter dispatches CPIs to the system and token programs.
type programRouter struct{}

func (programRouter) ExecuteProgram(ctx *runtime.ExecutionContext, instruction *types.Instruction) error {
	switch instruction.ProgramID {
	case types.SystemProgramID:
		return system.New().Execute(ctx, instruction.Data)
	case types.TokenProgramID:
		return token.New().Execute(ctx, instruction.Data)
	default:
		return fmt.Errorf("unknown program %s", instruction.ProgramID)
	}
}

func pk(b byte) types.Pubkey {
	var p types.Pubkey
	for i := range p {
		p[i] = b
	}
	return p
}

func account(pubkey types.Pubkey, lamports uint64, data []byte, owner types.Pubkey, signer, writable bool) *runtime.AccountInfo {
	l := lamports
	return &runtime.AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &l,
		Data:       data,
		Owner:      owner,
		IsSigner:   signer,
		IsWritable: writable,
	}
}

func programAccount(pubkey types.Pubkey) *runtime.AccountInfo {
	acc := account(pubkey, 1, nil, types.NativeLoaderID, false, false)
	acc.Executable = true
	return acc
}

type createFixture struct {
	payer *runtime.AccountInfo
	ata   *runtime.AccountInfo
	owner *runtime.AccountInfo
	mint  *runtime.AccountInfo
	ctx   *runtime.ExecutionContext
}

func newCreateFixture(t *testing.T, data []byte) *createFixture {
	t.Helper()

	ownerKey := pk(1)
	mintKey := pk(2)
	authority := pk(3)

	ataKey, _, err := runtime.DeriveAssociatedTokenAddress(ownerKey, types.TokenProgramID, mintKey)
	if err != nil {
		t.Fatal(err)
	}

	mint := token.NewMint(9, &authority, nil)

	f := &createFixture{
		payer: account(pk(4), 10_000_000_000, nil, types.SystemProgramID, true, true),
		ata:   account(ataKey, 0, nil, types.SystemProgramID, false, true),
		owner: account(ownerKey, 0, nil, types.SystemProgramID, false, false),
		mint:  account(mintKey, 1_000_000_000, mint.Serialize(), types.TokenProgramID, false, false),
	}
	f.ctx = runtime.NewExecutionContext(types.AssociatedTokenProgramID, []*runtime.AccountInfo{
		f.payer,
		f.ata,
		f.owner,
		f.mint,
		programAccount(types.SystemProgramID),
		programAccount(types.TokenProgramID),
	}, data, 1_000_000)
	f.ctx.SetInvokeHandler(programRouter{})
	return f
}

func TestCreate(t *testing.T) {
	data := []byte{InstructionCreate}
	f := newCreateFixture(t, data)

	if err := New().Execute(f.ctx, data); err != nil {
		t.Fatalf("Create failed: %v\nlogs: %v", err, f.ctx.GetLogs())
	}

	if f.ata.Owner != types.TokenProgramID {
		t.Errorf("ata owner = %s, want token program", f.ata.Owner)
	}
	if len(f.ata.Data) != token.TokenAccountSize {
		t.Fatalf("ata data size = %d, want %d", len(f.ata.Data), token.TokenAccountSize)
	}

	acc, err := token.DeserializeTokenAccount(f.ata.Data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Mint != f.mint.Pubkey || acc.Owner != f.owner.Pubkey {
		t.Errorf("initialized for mint=%s owner=%s", acc.Mint, acc.Owner)
	}
	if acc.Amount != 0 || acc.State != token.AccountStateInitialized {
		t.Errorf("unexpected account state: %+v", acc)
	}

	rent := uint64(types.RentExemptMinimum(token.TokenAccountSize))
	if *f.ata.Lamports != rent {
		t.Errorf("ata lamports = %d, want %d", *f.ata.Lamports, rent)
	}
	if *f.payer.Lamports != 10_000_000_000-rent {
		t.Errorf("payer lamports = %d", *f.payer.Lamports)
	}
}

func TestCreateRejectsWrongAddress(t *testing.T) {
	data := []byte{InstructionCreate}
	f := newCreateFixture(t, data)

	// Swap in an arbitrary account at the associated position.
	wrong := account(pk(9), 0, nil, types.SystemProgramID, false, true)
	ctx := runtime.NewExecutionContext(types.AssociatedTokenProgramID, []*runtime.AccountInfo{
		f.payer, wrong, f.owner, f.mint,
		programAccount(types.SystemProgramID),
		programAccount(types.TokenProgramID),
	}, data, 1_000_000)
	ctx.SetInvokeHandler(programRouter{})

	if err := New().Execute(ctx, data); !errors.Is(err, ErrAddressMismatch) {
		t.Errorf("expected ErrAddressMismatch, got %v", err)
	}
}

func TestCreateExisting(t *testing.T) {
	data := []byte{InstructionCreate}
	f := newCreateFixture(t, data)
	if err := New().Execute(f.ctx, data); err != nil {
		t.Fatal(err)
	}

	// A second non-idempotent create fails.
	if err := New().Execute(f.ctx, data); !errors.Is(err, ErrAccountAlreadyExists) {
		t.Errorf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

func TestCreateIdempotent(t *testing.T) {
	create := []byte{InstructionCreate}
	f := newCreateFixture(t, create)
	if err := New().Execute(f.ctx, create); err != nil {
		t.Fatal(err)
	}

	idempotent := []byte{InstructionCreateIdempotent}
	ctx := runtime.NewExecutionContext(types.AssociatedTokenProgramID, f.ctx.Accounts, idempotent, 1_000_000)
	ctx.SetInvokeHandler(programRouter{})
	if err := New().Execute(ctx, idempotent); err != nil {
		t.Errorf("CreateIdempotent on existing account failed: %v", err)
	}
}

func TestCreateIdempotentMismatch(t *testing.T) {
	data := []byte{InstructionCreateIdempotent}
	f := newCreateFixture(t, data)

	// Pre-populate the derived address with a token account for a
	// different owner.
	other := token.NewTokenAccount(f.mint.Pubkey, pk(9))
	f.ata.Data = other.Serialize()
	f.ata.Owner = types.TokenProgramID
	*f.ata.Lamports = 1_000_000

	if err := New().Execute(f.ctx, data); !errors.Is(err, ErrAccountMismatch) {
		t.Errorf("expected ErrAccountMismatch, got %v", err)
	}
}
