package issuance

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/fortiblox/x1-stratus/pkg/programs/associatedtoken"
	"github.com/fortiblox/x1-stratus/pkg/programs/metadata"
	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

var (
	testProgramID         = testKey(0x70)
	testMetadataProgramID = testKey(0x71)
)

func testKey(b byte) types.Pubkey {
	var p types.Pubkey
	for i := range p {
		p[i] = b
	}
	return p
}

// testRouter dispatches CPIs to the built-in program set plus the
// configured metadata and issuance programs.
type testRouter struct {
	issuance *IssuanceProgram
	metadata *metadata.MetadataProgram
}

func (r *testRouter) ExecuteProgram(ctx *runtime.ExecutionContext, instruction *types.Instruction) error {
	switch instruction.ProgramID {
	case types.SystemProgramID:
		return system.New().Execute(ctx, instruction.Data)
	case types.TokenProgramID:
		return token.New().Execute(ctx, instruction.Data)
	case types.AssociatedTokenProgramID:
		return associatedtoken.New().Execute(ctx, instruction.Data)
	case testMetadataProgramID:
		if r.metadata == nil {
			return fmt.Errorf("metadata program not deployed")
		}
		return r.metadata.Execute(ctx, instruction.Data)
	case testProgramID:
		return r.issuance.Execute(ctx, instruction.Data)
	default:
		return fmt.Errorf("unknown program %s", instruction.ProgramID)
	}
}

func testAccount(pubkey types.Pubkey, lamports uint64, data []byte, owner types.Pubkey, signer, writable bool) *runtime.AccountInfo {
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

func testProgramAccount(pubkey types.Pubkey) *runtime.AccountInfo {
	acc := testAccount(pubkey, 1, nil, types.NativeLoaderID, false, false)
	acc.Executable = true
	return acc
}

// worldFixture holds the accounts of a small token world shared across
// sequential instructions, the way the engine would hand them to each one.
type worldFixture struct {
	t       *testing.T
	program *IssuanceProgram
	router  *testRouter

	payer            *runtime.AccountInfo
	mint             *runtime.AccountInfo
	metadata         *runtime.AccountInfo
	recipient        *runtime.AccountInfo
	recipientBalance *runtime.AccountInfo
	payerBalance     *runtime.AccountInfo
}

func newWorldFixture(t *testing.T, withMetadata bool) *worldFixture {
	t.Helper()

	payerKey := testKey(1)
	mintKey := testKey(2)
	recipientKey := testKey(3)

	recipientBalanceKey, _, err := runtime.DeriveAssociatedTokenAddress(recipientKey, types.TokenProgramID, mintKey)
	if err != nil {
		t.Fatal(err)
	}
	payerBalanceKey, _, err := runtime.DeriveAssociatedTokenAddress(payerKey, types.TokenProgramID, mintKey)
	if err != nil {
		t.Fatal(err)
	}

	f := &worldFixture{
		t:                t,
		payer:            testAccount(payerKey, 100_000_000_000, nil, types.SystemProgramID, true, true),
		mint:             testAccount(mintKey, 0, nil, types.SystemProgramID, true, true),
		recipient:        testAccount(recipientKey, 0, nil, types.SystemProgramID, false, false),
		recipientBalance: testAccount(recipientBalanceKey, 0, nil, types.SystemProgramID, false, true),
		payerBalance:     testAccount(payerBalanceKey, 0, nil, types.SystemProgramID, false, true),
	}
	if withMetadata {
		metadataKey, _, err := runtime.DeriveMetadataAddress(testMetadataProgramID, mintKey)
		if err != nil {
			t.Fatal(err)
		}
		f.metadata = testAccount(metadataKey, 0, nil, types.SystemProgramID, false, true)
		f.program = NewWithMetadata(testProgramID, testMetadataProgramID)
		f.router = &testRouter{issuance: f.program, metadata: metadata.New(testMetadataProgramID)}
	} else {
		f.program = New(testProgramID)
		f.router = &testRouter{issuance: f.program}
	}
	return f
}

func (f *worldFixture) execute(data []byte, accounts ...*runtime.AccountInfo) (*runtime.ExecutionContext, error) {
	f.t.Helper()
	ctx := runtime.NewExecutionContext(testProgramID, accounts, data, 10_000_000)
	ctx.SetInvokeHandler(f.router)
	return ctx, f.program.Execute(ctx, data)
}

func (f *worldFixture) createToken(name, symbol, uri string) (*runtime.ExecutionContext, error) {
	f.t.Helper()
	args := &CreateTokenArgs{Name: name, Symbol: symbol, URI: uri}
	if f.metadata != nil {
		return f.execute(args.Encode(),
			f.payer, f.mint, f.metadata,
			testProgramAccount(types.TokenProgramID),
			testProgramAccount(testMetadataProgramID),
			testProgramAccount(types.SystemProgramID),
			testProgramAccount(types.SysvarRentID))
	}
	return f.execute(args.Encode(),
		f.payer, f.mint,
		testProgramAccount(types.TokenProgramID),
		testProgramAccount(types.SystemProgramID),
		testProgramAccount(types.SysvarRentID))
}

func (f *worldFixture) mintToken(amount uint64) (*runtime.ExecutionContext, error) {
	f.t.Helper()
	args := &MintTokenArgs{Amount: amount}
	return f.execute(args.Encode(),
		f.payer, f.recipient, f.mint, f.recipientBalance,
		testProgramAccount(types.TokenProgramID),
		testProgramAccount(types.AssociatedTokenProgramID),
		testProgramAccount(types.SystemProgramID))
}

// transferFromRecipient moves tokens from the recipient back to the
// payer. The recipient acts as the signing sender for this call.
func (f *worldFixture) transferFromRecipient(amount uint64) (*runtime.ExecutionContext, error) {
	f.t.Helper()
	f.recipient.IsSigner = true
	f.recipient.IsWritable = true
	defer func() {
		f.recipient.IsSigner = false
		f.recipient.IsWritable = false
	}()

	args := &TransferTokensArgs{Amount: amount}
	return f.execute(args.Encode(),
		f.recipient, f.payer, f.mint, f.recipientBalance, f.payerBalance,
		testProgramAccount(types.TokenProgramID),
		testProgramAccount(types.AssociatedTokenProgramID),
		testProgramAccount(types.SystemProgramID))
}

func (f *worldFixture) mintState() *token.Mint {
	f.t.Helper()
	mint, err := token.DeserializeMint(f.mint.Data)
	if err != nil {
		f.t.Fatalf("deserialize mint: %v", err)
	}
	return mint
}

func (f *worldFixture) balanceOf(acc *runtime.AccountInfo) uint64 {
	f.t.Helper()
	balance, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil {
		f.t.Fatalf("deserialize balance account: %v", err)
	}
	return balance.Amount
}

func TestCreateToken(t *testing.T) {
	f := newWorldFixture(t, false)

	ctx, err := f.createToken("Demo Token", "DEMO", "")
	if err != nil {
		t.Fatalf("create_token failed: %v", err)
	}

	if f.mint.Owner != types.TokenProgramID {
		t.Errorf("mint owner = %s, want token program", f.mint.Owner)
	}
	mint := f.mintState()
	if !mint.IsInitialized {
		t.Error("mint not initialized")
	}
	if mint.Decimals != TokenDecimals {
		t.Errorf("decimals = %d, want %d", mint.Decimals, TokenDecimals)
	}
	if mint.Supply != 0 {
		t.Errorf("supply = %d, want 0", mint.Supply)
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != f.payer.Pubkey {
		t.Error("mint authority is not the payer")
	}
	if !mint.FreezeAuthority.IsSome || mint.FreezeAuthority.Value != f.payer.Pubkey {
		t.Error("freeze authority is not the payer")
	}

	// Without a metadata program the name and symbol only hit the log.
	found := false
	for _, log := range ctx.GetLogs() {
		if strings.Contains(log, "DEMO") {
			found = true
		}
	}
	if !found {
		t.Error("symbol missing from logs")
	}
}

func TestCreateTokenTwice(t *testing.T) {
	f := newWorldFixture(t, false)

	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatalf("first create_token failed: %v", err)
	}
	if _, err := f.createToken("Demo Token", "DEMO", ""); !errors.Is(err, ErrMintAlreadyInitialized) {
		t.Errorf("second create_token = %v, want ErrMintAlreadyInitialized", err)
	}
}

func TestCreateTokenMintMustSign(t *testing.T) {
	f := newWorldFixture(t, false)
	f.mint.IsSigner = false

	if _, err := f.createToken("Demo Token", "DEMO", ""); !errors.Is(err, ErrMissingSigner) {
		t.Errorf("create_token = %v, want ErrMissingSigner", err)
	}
}

func TestCreateTokenWithMetadata(t *testing.T) {
	f := newWorldFixture(t, true)

	if _, err := f.createToken("Demo Token", "DEMO", "https://example.com/demo.json"); err != nil {
		t.Fatalf("create_token failed: %v", err)
	}

	if f.metadata.Owner != testMetadataProgramID {
		t.Fatalf("metadata owner = %s, want metadata program", f.metadata.Owner)
	}
	record, err := metadata.DeserializeMetadata(f.metadata.Data)
	if err != nil {
		t.Fatalf("deserialize metadata: %v", err)
	}
	if record.Name != "Demo Token" || record.Symbol != "DEMO" {
		t.Errorf("metadata = %q (%q)", record.Name, record.Symbol)
	}
	if record.URI != "https://example.com/demo.json" {
		t.Errorf("uri = %q", record.URI)
	}
	if record.Mint != f.mint.Pubkey {
		t.Error("metadata records wrong mint")
	}
	if record.UpdateAuthority != f.payer.Pubkey {
		t.Error("update authority is not the payer")
	}
	if record.IsMutable {
		t.Error("metadata record should be immutable")
	}
}

func TestCreateTokenWrongMetadataAddress(t *testing.T) {
	f := newWorldFixture(t, true)
	f.metadata = testAccount(testKey(0x33), 0, nil, types.SystemProgramID, false, true)

	if _, err := f.createToken("Demo Token", "DEMO", ""); !errors.Is(err, ErrDerivedAddressMismatch) {
		t.Errorf("create_token = %v, want ErrDerivedAddressMismatch", err)
	}
}

func TestCreateTokenURIWithoutMetadata(t *testing.T) {
	f := newWorldFixture(t, false)

	if _, err := f.createToken("Demo Token", "DEMO", "https://example.com/demo.json"); !errors.Is(err, ErrMetadataNotConfigured) {
		t.Errorf("create_token = %v, want ErrMetadataNotConfigured", err)
	}
}

func TestMintToken(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	ctx, err := f.mintToken(5)
	if err != nil {
		t.Fatalf("mint_token failed: %v", err)
	}

	// 5 human units at 9 decimals.
	if got := f.balanceOf(f.recipientBalance); got != 5_000_000_000 {
		t.Errorf("recipient balance = %d, want 5000000000", got)
	}
	if got := f.mintState().Supply; got != 5_000_000_000 {
		t.Errorf("supply = %d, want 5000000000", got)
	}
	if f.recipientBalance.Owner != types.TokenProgramID {
		t.Error("balance account not owned by token program")
	}

	// First use provisions the balance account.
	provisioned := false
	for _, log := range ctx.GetLogs() {
		if strings.Contains(log, "provisioned balance account") {
			provisioned = true
		}
	}
	if !provisioned {
		t.Error("expected provisioning log on first mint")
	}
}

func TestMintTokenIdempotentProvisioning(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := f.mintToken(5); err != nil {
		t.Fatalf("first mint_token failed: %v", err)
	}
	lamportsAfterFirst := *f.recipientBalance.Lamports

	ctx, err := f.mintToken(3)
	if err != nil {
		t.Fatalf("second mint_token failed: %v", err)
	}

	if got := f.balanceOf(f.recipientBalance); got != 8_000_000_000 {
		t.Errorf("recipient balance = %d, want 8000000000", got)
	}
	if *f.recipientBalance.Lamports != lamportsAfterFirst {
		t.Error("second mint should not re-fund the balance account")
	}
	for _, log := range ctx.GetLogs() {
		if strings.Contains(log, "provisioned balance account") {
			t.Error("second mint should not provision again")
		}
	}
}

func TestMintTokenUnauthorized(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	// Swap in a different signer as the claimed authority.
	intruder := testAccount(testKey(9), 100_000_000_000, nil, types.SystemProgramID, true, true)
	args := &MintTokenArgs{Amount: 5}
	_, err := f.execute(args.Encode(),
		intruder, f.recipient, f.mint, f.recipientBalance,
		testProgramAccount(types.TokenProgramID),
		testProgramAccount(types.AssociatedTokenProgramID),
		testProgramAccount(types.SystemProgramID))
	if !errors.Is(err, ErrUnauthorizedMintAuthority) {
		t.Fatalf("mint_token = %v, want ErrUnauthorizedMintAuthority", err)
	}

	// The failed instruction must leave no trace.
	if f.mintState().Supply != 0 {
		t.Error("supply changed after failed mint")
	}
	if f.recipientBalance.Exists() {
		t.Error("balance account created after failed mint")
	}
}

func TestMintTokenOverflow(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := f.mintToken(math.MaxUint64/1_000_000_000 + 1); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("mint_token = %v, want ErrAmountOverflow", err)
	}
	if f.mintState().Supply != 0 {
		t.Error("supply changed after overflowing mint")
	}
}

func TestMintTokenWrongBalanceAddress(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	f.recipientBalance = testAccount(testKey(0x44), 0, nil, types.SystemProgramID, false, true)
	if _, err := f.mintToken(5); !errors.Is(err, ErrDerivedAddressMismatch) {
		t.Errorf("mint_token = %v, want ErrDerivedAddressMismatch", err)
	}
}

func TestMintTokenWrongTokenProgram(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	// The token program position holds some other program.
	args := &MintTokenArgs{Amount: 1}
	_, err := f.execute(args.Encode(),
		f.payer, f.recipient, f.mint, f.recipientBalance,
		testProgramAccount(testKey(0x42)),
		testProgramAccount(types.AssociatedTokenProgramID),
		testProgramAccount(types.SystemProgramID))
	if !errors.Is(err, ErrAddressConstraint) {
		t.Errorf("mint_token = %v, want ErrAddressConstraint", err)
	}
}

func TestMintTokenUninitializedMint(t *testing.T) {
	f := newWorldFixture(t, false)

	// A funded account owned by the token program but never initialized.
	f.mint.Owner = types.TokenProgramID
	*f.mint.Lamports = 1_000_000_000
	f.mint.Data = make([]byte, token.MintSize)

	if _, err := f.mintToken(5); !errors.Is(err, ErrMintUninitialized) {
		t.Errorf("mint_token = %v, want ErrMintUninitialized", err)
	}
}

func TestTransferTokens(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mintToken(5); err != nil {
		t.Fatal(err)
	}

	if _, err := f.transferFromRecipient(2); err != nil {
		t.Fatalf("transfer_tokens failed: %v", err)
	}

	if got := f.balanceOf(f.recipientBalance); got != 3_000_000_000 {
		t.Errorf("sender balance = %d, want 3000000000", got)
	}
	if got := f.balanceOf(f.payerBalance); got != 2_000_000_000 {
		t.Errorf("recipient balance = %d, want 2000000000", got)
	}
	if got := f.mintState().Supply; got != 5_000_000_000 {
		t.Errorf("supply = %d, want 5000000000 (transfers preserve supply)", got)
	}
}

func TestTransferTokensToSelf(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mintToken(5); err != nil {
		t.Fatal(err)
	}

	// Sender and recipient are the same wallet, so both balance roles
	// derive the same associated token address.
	f.recipient.IsSigner = true
	f.recipient.IsWritable = true
	defer func() {
		f.recipient.IsSigner = false
		f.recipient.IsWritable = false
	}()

	args := &TransferTokensArgs{Amount: 2}
	if _, err := f.execute(args.Encode(),
		f.recipient, f.recipient, f.mint, f.recipientBalance, f.recipientBalance,
		testProgramAccount(types.TokenProgramID),
		testProgramAccount(types.AssociatedTokenProgramID),
		testProgramAccount(types.SystemProgramID)); err != nil {
		t.Fatalf("self transfer_tokens failed: %v", err)
	}

	if got := f.balanceOf(f.recipientBalance); got != 5_000_000_000 {
		t.Errorf("balance after self-transfer = %d, want 5000000000", got)
	}
	if got := f.mintState().Supply; got != 5_000_000_000 {
		t.Errorf("supply = %d, want 5000000000 (transfers preserve supply)", got)
	}
}

func TestTransferTokensMissingSenderBalance(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}

	// The recipient never received anything, so their balance account at
	// the derived address does not exist yet.
	if _, err := f.transferFromRecipient(1); !errors.Is(err, ErrAccountMissing) {
		t.Errorf("transfer_tokens = %v, want ErrAccountMissing", err)
	}
}

func TestTransferTokensInsufficient(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mintToken(5); err != nil {
		t.Fatal(err)
	}

	if _, err := f.transferFromRecipient(6); !errors.Is(err, token.ErrInsufficientFunds) {
		t.Fatalf("transfer_tokens = %v, want token.ErrInsufficientFunds", err)
	}

	// Balances are untouched when the delegated transfer fails.
	if got := f.balanceOf(f.recipientBalance); got != 5_000_000_000 {
		t.Errorf("sender balance = %d after failed transfer", got)
	}
}

func TestTransferTokensWrongSenderBalance(t *testing.T) {
	f := newWorldFixture(t, false)
	if _, err := f.createToken("Demo Token", "DEMO", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mintToken(5); err != nil {
		t.Fatal(err)
	}

	// Pass the payer's (non-derived for the recipient) balance account as
	// the sender balance.
	fake := testAccount(testKey(0x55), 1_000_000_000, make([]byte, token.TokenAccountSize), types.TokenProgramID, false, true)
	f.recipient.IsSigner = true
	f.recipient.IsWritable = true
	args := &TransferTokensArgs{Amount: 1}
	_, err := f.execute(args.Encode(),
		f.recipient, f.payer, f.mint, fake, f.payerBalance,
		testProgramAccount(types.TokenProgramID),
		testProgramAccount(types.AssociatedTokenProgramID),
		testProgramAccount(types.SystemProgramID))
	if !errors.Is(err, ErrDerivedAddressMismatch) {
		t.Errorf("transfer_tokens = %v, want ErrDerivedAddressMismatch", err)
	}
}

func TestExecuteUnknownDiscriminator(t *testing.T) {
	f := newWorldFixture(t, false)

	_, err := f.execute([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x02, 0x03}, f.payer)
	if !errors.Is(err, ErrUnknownInstruction) {
		t.Errorf("Execute = %v, want ErrUnknownInstruction", err)
	}

	_, err = f.execute([]byte{0x01}, f.payer)
	if !errors.Is(err, ErrInvalidInstructionData) {
		t.Errorf("Execute = %v, want ErrInvalidInstructionData", err)
	}
}

func TestCreateTokenArgsOptionalURI(t *testing.T) {
	withURI := &CreateTokenArgs{Name: "Demo", Symbol: "DEMO", URI: "https://example.com/x.json"}
	data := withURI.Encode()
	var decoded CreateTokenArgs
	if err := decoded.Decode(data[DiscriminatorSize:]); err != nil {
		t.Fatal(err)
	}
	if decoded != *withURI {
		t.Errorf("decoded = %+v", decoded)
	}

	withoutURI := &CreateTokenArgs{Name: "Demo", Symbol: "DEMO"}
	data = withoutURI.Encode()
	decoded = CreateTokenArgs{}
	if err := decoded.Decode(data[DiscriminatorSize:]); err != nil {
		t.Fatal(err)
	}
	if decoded.URI != "" {
		t.Errorf("uri = %q, want empty", decoded.URI)
	}
}
