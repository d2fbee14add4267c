package metadata

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

type systemRouter struct{}

func (systemRouter) ExecuteProgram(ctx *runtime.ExecutionContext, instruction *types.Instruction) error {
	if instruction.ProgramID != types.SystemProgramID {
		return fmt.Errorf("unknown program %s", instruction.ProgramID)
	}
	return system.New().Execute(ctx, instruction.Data)
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

var testProgramID = pk(0x40)

type metadataFixture struct {
	program  *MetadataProgram
	metadata *runtime.AccountInfo
	mint     *runtime.AccountInfo
	payer    *runtime.AccountInfo
}

func (f *metadataFixture) context(data []byte, authority, updateAuthority types.Pubkey) *runtime.ExecutionContext {
	sysAcc := account(types.SystemProgramID, 1, nil, types.NativeLoaderID, false, false)
	sysAcc.Executable = true
	ctx := runtime.NewExecutionContext(testProgramID, []*runtime.AccountInfo{
		f.metadata,
		f.mint,
		account(authority, 0, nil, types.SystemProgramID, true, false),
		f.payer,
		account(updateAuthority, 0, nil, types.SystemProgramID, false, false),
		sysAcc,
	}, data, 1_000_000)
	ctx.SetInvokeHandler(systemRouter{})
	return ctx
}

func newMetadataFixture(t *testing.T) *metadataFixture {
	t.Helper()

	mintKey := pk(1)
	authority := pk(2)
	mint := token.NewMint(9, &authority, nil)

	metadataKey, _, err := runtime.DeriveMetadataAddress(testProgramID, mintKey)
	if err != nil {
		t.Fatal(err)
	}

	return &metadataFixture{
		program:  New(testProgramID),
		metadata: account(metadataKey, 0, nil, types.SystemProgramID, false, true),
		mint:     account(mintKey, 1_000_000_000, mint.Serialize(), types.TokenProgramID, false, false),
		payer:    account(pk(3), 10_000_000_000, nil, types.SystemProgramID, true, true),
	}
}

func TestCreateMetadata(t *testing.T) {
	f := newMetadataFixture(t)
	updateAuthority := pk(4)

	inst := &CreateMetadataInstruction{
		Name:      "Demo Token",
		Symbol:    "DEMO",
		URI:       "https://example.com/demo.json",
		IsMutable: true,
	}
	data := inst.Encode()
	ctx := f.context(data, pk(2), updateAuthority)

	if err := f.program.Execute(ctx, data); err != nil {
		t.Fatalf("CreateMetadata failed: %v\nlogs: %v", err, ctx.GetLogs())
	}

	if f.metadata.Owner != testProgramID {
		t.Errorf("metadata owner = %s, want program", f.metadata.Owner)
	}
	meta, err := DeserializeMetadata(f.metadata.Data)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Name != "Demo Token" || meta.Symbol != "DEMO" {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Mint != f.mint.Pubkey || meta.UpdateAuthority != updateAuthority {
		t.Errorf("metadata keys = mint %s authority %s", meta.Mint, meta.UpdateAuthority)
	}
	if !meta.IsMutable {
		t.Error("metadata should be mutable")
	}
}

func TestCreateMetadataWrongMintAuthority(t *testing.T) {
	f := newMetadataFixture(t)

	inst := &CreateMetadataInstruction{Name: "X", Symbol: "X", URI: "u"}
	data := inst.Encode()
	ctx := f.context(data, pk(9), pk(4))

	if err := f.program.Execute(ctx, data); !errors.Is(err, ErrAuthorityMismatch) {
		t.Errorf("expected ErrAuthorityMismatch, got %v", err)
	}
}

func TestCreateMetadataNameTooLong(t *testing.T) {
	f := newMetadataFixture(t)

	inst := &CreateMetadataInstruction{
		Name:   strings.Repeat("x", MaxNameLength+1),
		Symbol: "X",
		URI:    "u",
	}
	data := inst.Encode()
	if err := f.program.Execute(f.context(data, pk(2), pk(4)), data); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("expected ErrNameTooLong, got %v", err)
	}
}

func TestUpdateMetadata(t *testing.T) {
	f := newMetadataFixture(t)
	updateAuthority := pk(4)

	create := &CreateMetadataInstruction{Name: "Demo", Symbol: "DEMO", URI: "u1", IsMutable: true}
	data := create.Encode()
	if err := f.program.Execute(f.context(data, pk(2), updateAuthority), data); err != nil {
		t.Fatal(err)
	}

	update := &UpdateMetadataInstruction{Name: "Demo v2", Symbol: "DEMO2", URI: "u2"}
	updateData := update.Encode()
	ctx := runtime.NewExecutionContext(testProgramID, []*runtime.AccountInfo{
		f.metadata,
		account(updateAuthority, 0, nil, types.SystemProgramID, true, false),
	}, updateData, 1_000_000)

	if err := f.program.Execute(ctx, updateData); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	meta, err := DeserializeMetadata(f.metadata.Data)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Name != "Demo v2" || meta.Symbol != "DEMO2" || meta.URI != "u2" {
		t.Errorf("metadata after update = %+v", meta)
	}
}

func TestUpdateImmutableMetadata(t *testing.T) {
	f := newMetadataFixture(t)
	updateAuthority := pk(4)

	create := &CreateMetadataInstruction{Name: "Demo", Symbol: "DEMO", URI: "u1", IsMutable: false}
	data := create.Encode()
	if err := f.program.Execute(f.context(data, pk(2), updateAuthority), data); err != nil {
		t.Fatal(err)
	}

	update := &UpdateMetadataInstruction{Name: "Demo v2", Symbol: "DEMO2", URI: "u2"}
	updateData := update.Encode()
	ctx := runtime.NewExecutionContext(testProgramID, []*runtime.AccountInfo{
		f.metadata,
		account(updateAuthority, 0, nil, types.SystemProgramID, true, false),
	}, updateData, 1_000_000)

	if err := f.program.Execute(ctx, updateData); !errors.Is(err, ErrImmutable) {
		t.Errorf("expected ErrImmutable, got %v", err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	meta := &Metadata{
		Mint:            pk(1),
		UpdateAuthority: pk(2),
		Name:            "Token",
		Symbol:          "TKN",
		URI:             "https://example.com/t.json",
		IsMutable:       true,
	}
	decoded, err := DeserializeMetadata(meta.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if *decoded != *meta {
		t.Errorf("round trip mismatch: %+v vs %+v", decoded, meta)
	}

	if _, err := DeserializeMetadata([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidAccountData) {
		t.Errorf("expected ErrInvalidAccountData, got %v", err)
	}
}
