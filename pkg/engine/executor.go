package engine

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/accounts"
	"github.com/fortiblox/x1-stratus/pkg/crypto"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Executor errors
var (
	// ErrNilTransaction indicates a nil transaction was submitted.
	ErrNilTransaction = errors.New("nil transaction")

	// ErrNoInstructions indicates the transaction carries no instructions.
	ErrNoInstructions = errors.New("transaction has no instructions")

	// ErrAccountIndexOutOfBounds indicates a compiled instruction
	// references an account index past the transaction's account list.
	ErrAccountIndexOutOfBounds = errors.New("account index out of bounds")

	// ErrSignatureVerification indicates a transaction signature is invalid.
	ErrSignatureVerification = errors.New("signature verification failed")
)

// Compute limits
const (
	// DefaultComputeUnits is the default compute unit limit per transaction.
	DefaultComputeUnits = 200_000

	// MaxComputeUnits is the maximum compute unit limit per transaction.
	MaxComputeUnits = 1_400_000
)

// Executor executes transactions against an accounts database.
//
// A transaction is atomic: its instructions run in order against a
// working copy of the referenced accounts, and the database is updated
// only when every instruction succeeds. A failed transaction leaves the
// database untouched and reports the failure in its result.
type Executor struct {
	db       accounts.AccountsDB
	registry *ProgramRegistry

	computeUnitsLimit types.ComputeUnits

	// skipSignatureVerification disables ed25519 verification, for
	// replaying pre-verified history.
	skipSignatureVerification bool
}

// NewExecutor creates a transaction executor.
func NewExecutor(db accounts.AccountsDB, registry *ProgramRegistry) *Executor {
	return &Executor{
		db:                db,
		registry:          registry,
		computeUnitsLimit: DefaultComputeUnits,
	}
}

// SetComputeUnitsLimit sets the per-transaction compute unit limit,
// clamped to MaxComputeUnits.
func (e *Executor) SetComputeUnitsLimit(limit types.ComputeUnits) {
	if limit > MaxComputeUnits {
		limit = MaxComputeUnits
	}
	e.computeUnitsLimit = limit
}

// SetSkipSignatureVerification disables signature verification.
func (e *Executor) SetSkipSignatureVerification(skip bool) {
	e.skipSignatureVerification = skip
}

// ExecuteTransaction executes a complete transaction. Execution failures
// are reported in the result, not as a returned error; the returned
// error is reserved for database faults.
func (e *Executor) ExecuteTransaction(tx *types.Transaction) (*types.TransactionResult, error) {
	result := &types.TransactionResult{
		Logs:          make([]string, 0),
		AccountDeltas: make([]types.AccountDelta, 0),
	}

	if tx == nil {
		result.Error = ErrNilTransaction
		return result, nil
	}
	if len(tx.Message.Instructions) == 0 {
		result.Error = ErrNoInstructions
		return result, nil
	}

	if !e.skipSignatureVerification {
		if err := crypto.VerifyTransaction(tx); err != nil {
			result.Error = fmt.Errorf("%w: %v", ErrSignatureVerification, err)
			return result, nil
		}
	}

	// Load every referenced account once. The working set is shared
	// across the transaction's instructions so later instructions see
	// earlier instructions' writes.
	working, snapshots, err := e.loadTransactionAccounts(tx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	remaining := uint64(e.computeUnitsLimit)
	for i, compiled := range tx.Message.Instructions {
		instruction, err := decompileInstruction(&tx.Message, &compiled)
		if err != nil {
			result.Error = fmt.Errorf("instruction %d: %w", i, err)
			return result, nil
		}

		ctx, instructionAccounts := e.createInstructionContext(instruction, working, remaining)

		if err := e.registry.ExecuteProgram(ctx, instruction); err != nil {
			result.Error = &InstructionError{Index: i, ProgramID: instruction.ProgramID, Err: err}
			result.Logs = append(result.Logs, ctx.GetLogs()...)
			result.ComputeUnits += types.ComputeUnits(ctx.ComputeUnitsConsumed())
			return result, nil
		}

		commitInstructionAccounts(instruction, instructionAccounts, working)

		result.Logs = append(result.Logs, ctx.GetLogs()...)
		consumed := ctx.ComputeUnitsConsumed()
		result.ComputeUnits += types.ComputeUnits(consumed)
		remaining -= consumed
	}

	// All instructions succeeded; commit the working set.
	committed := make(map[types.Pubkey]bool, len(working))
	for _, pubkey := range tx.Message.AccountKeys {
		if committed[pubkey] {
			continue
		}
		committed[pubkey] = true
		info := working[pubkey]
		newAccount := accountInfoToAccount(info)
		oldAccount := snapshots[pubkey]
		if accountsEqual(oldAccount, newAccount) {
			continue
		}

		if newAccount.IsEmpty() {
			if err := e.db.DeleteAccount(pubkey); err != nil {
				return nil, fmt.Errorf("delete account %s: %w", pubkey, err)
			}
			newAccount = nil
		} else {
			if err := e.db.SetAccount(pubkey, newAccount); err != nil {
				return nil, fmt.Errorf("store account %s: %w", pubkey, err)
			}
		}
		result.AccountDeltas = append(result.AccountDeltas, types.AccountDelta{
			Pubkey:     pubkey,
			OldAccount: oldAccount,
			NewAccount: newAccount,
		})
	}

	result.Success = true
	return result, nil
}

// loadTransactionAccounts loads the accounts referenced by a transaction
// into a working set keyed by pubkey, with privileges derived from the
// message header. Unknown pubkeys materialize as empty system-owned
// accounts. The returned snapshots hold the pre-execution state for
// delta computation; a nil snapshot means the account did not exist.
func (e *Executor) loadTransactionAccounts(tx *types.Transaction) (map[types.Pubkey]*runtime.AccountInfo, map[types.Pubkey]*types.Account, error) {
	working := make(map[types.Pubkey]*runtime.AccountInfo, len(tx.Message.AccountKeys))
	snapshots := make(map[types.Pubkey]*types.Account, len(tx.Message.AccountKeys))

	for i, pubkey := range tx.Message.AccountKeys {
		if _, seen := working[pubkey]; seen {
			continue
		}

		var account *types.Account
		if e.db.HasAccount(pubkey) {
			loaded, err := e.db.GetAccount(pubkey)
			if err != nil {
				return nil, nil, err
			}
			account = loaded
			snapshots[pubkey] = loaded.Clone()
		} else {
			account = &types.Account{Owner: types.SystemProgramID}
			snapshots[pubkey] = nil
		}

		lamports := uint64(account.Lamports)
		data := make([]byte, len(account.Data))
		copy(data, account.Data)
		working[pubkey] = &runtime.AccountInfo{
			Pubkey:     pubkey,
			Lamports:   &lamports,
			Data:       data,
			Owner:      account.Owner,
			Executable: account.Executable,
			RentEpoch:  uint64(account.RentEpoch),
			IsSigner:   tx.Message.IsSigner(i),
			IsWritable: tx.Message.IsWritable(i),
		}
	}
	return working, snapshots, nil
}

// decompileInstruction expands a compiled instruction to full account
// metas using the message's privilege layout.
func decompileInstruction(msg *types.Message, compiled *types.CompiledInstruction) (*types.Instruction, error) {
	if int(compiled.ProgramIDIndex) >= len(msg.AccountKeys) {
		return nil, fmt.Errorf("%w: program ID index %d", ErrAccountIndexOutOfBounds, compiled.ProgramIDIndex)
	}

	metas := make([]types.AccountMeta, len(compiled.AccountIndices))
	for i, idx := range compiled.AccountIndices {
		if int(idx) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("%w: account index %d", ErrAccountIndexOutOfBounds, idx)
		}
		metas[i] = types.AccountMeta{
			Pubkey:     msg.AccountKeys[idx],
			IsSigner:   msg.IsSigner(int(idx)),
			IsWritable: msg.IsWritable(int(idx)),
		}
	}

	return &types.Instruction{
		ProgramID: msg.AccountKeys[compiled.ProgramIDIndex],
		Accounts:  metas,
		Data:      compiled.Data,
	}, nil
}

// createInstructionContext builds the execution context for one
// top-level instruction: cloned account views in meta order, so a failed
// instruction cannot leave partial writes in the working set.
func (e *Executor) createInstructionContext(instruction *types.Instruction, working map[types.Pubkey]*runtime.AccountInfo, computeUnits uint64) (*runtime.ExecutionContext, []*runtime.AccountInfo) {
	instructionAccounts := make([]*runtime.AccountInfo, len(instruction.Accounts))
	clones := make(map[types.Pubkey]*runtime.AccountInfo, len(instruction.Accounts))
	for i, meta := range instruction.Accounts {
		clone, seen := clones[meta.Pubkey]
		if !seen {
			clone = working[meta.Pubkey].Clone()
			clone.IsSigner = meta.IsSigner
			clone.IsWritable = meta.IsWritable
			clones[meta.Pubkey] = clone
		}
		instructionAccounts[i] = clone
	}

	ctx := runtime.NewExecutionContext(instruction.ProgramID, instructionAccounts, instruction.Data, computeUnits)
	ctx.SetInvokeHandler(e.registry)
	return ctx, instructionAccounts
}

// commitInstructionAccounts folds a successful instruction's writable
// account changes back into the transaction working set.
func commitInstructionAccounts(instruction *types.Instruction, instructionAccounts []*runtime.AccountInfo, working map[types.Pubkey]*runtime.AccountInfo) {
	for i, meta := range instruction.Accounts {
		if !meta.IsWritable {
			continue
		}
		target := working[meta.Pubkey]
		executed := instructionAccounts[i]

		*target.Lamports = *executed.Lamports
		target.Owner = executed.Owner
		if len(executed.Data) != len(target.Data) {
			target.Data = make([]byte, len(executed.Data))
		}
		copy(target.Data, executed.Data)
	}
}

// accountInfoToAccount converts a runtime account view back to its
// storage representation.
func accountInfoToAccount(info *runtime.AccountInfo) *types.Account {
	var data []byte
	if len(info.Data) > 0 {
		data = make([]byte, len(info.Data))
		copy(data, info.Data)
	}
	return &types.Account{
		Lamports:   types.Lamports(*info.Lamports),
		Data:       data,
		Owner:      info.Owner,
		Executable: info.Executable,
		RentEpoch:  types.Epoch(info.RentEpoch),
	}
}

// accountsEqual reports whether two stored accounts are identical.
func accountsEqual(a, b *types.Account) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Lamports != b.Lamports || a.Owner != b.Owner || a.Executable != b.Executable {
		return false
	}
	if len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// InstructionError identifies which instruction of a transaction failed.
type InstructionError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

// Error implements the error interface.
func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionError) Unwrap() error {
	return e.Err
}
