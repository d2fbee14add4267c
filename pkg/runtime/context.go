// Package runtime provides the instruction execution environment for
// X1-Stratus: per-instruction account views, program logs, compute
// metering, cross-program invocation, and program-derived addresses.
//
// An instruction runs to completion with exclusive access to every account
// it declares writable. The runtime itself never persists anything; the
// engine commits or discards account state around each transaction.
package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrAccountNotSigner    = errors.New("account is not a signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrMaxLogsExceeded     = errors.New("maximum log entries exceeded")
	ErrLogTooLong          = errors.New("log message too long")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrReadOnlyModified    = errors.New("read-only account was modified")
	ErrCPIDepthExceeded    = errors.New("maximum CPI depth exceeded")
	ErrNoInvokeHandler     = errors.New("no invoke handler registered")
)

// Limits for execution
const (
	MaxLogMessages      = 64
	MaxLogMessageLength = 10000
	MaxInstructionData  = 1232
	MaxAccountDataSize  = 10 * 1024 * 1024 // 10MB
	MaxCPIDepth         = 4

	// CUPerCPI is the compute cost charged per cross-program invocation.
	CUPerCPI = 1_000
)

// AccountInfo represents account information available to a program.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64 // Pointer allows modification detection
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// Exists returns true if the account has been created: it holds lamports
// or data. Accounts the engine materializes for unknown pubkeys are empty
// system-owned placeholders.
func (a *AccountInfo) Exists() bool {
	return *a.Lamports > 0 || len(a.Data) > 0
}

// logSink is the log buffer shared by a context and all its CPI children.
type logSink struct {
	mu      sync.Mutex
	entries []string
}

func (s *logSink) add(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= MaxLogMessages {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		return ErrLogTooLong
	}
	s.entries = append(s.entries, message)
	return nil
}

func (s *logSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// computeMeter tracks compute units across a context and its CPI children.
type computeMeter struct {
	mu        sync.Mutex
	remaining uint64
	limit     uint64
}

func (m *computeMeter) consume(units uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if units > m.remaining {
		m.remaining = 0
		return ErrComputeExhausted
	}
	m.remaining -= units
	return nil
}

// InvokeHandler executes a program on behalf of a cross-program
// invocation. The engine's program registry implements this, which keeps
// the runtime free of a dependency on any particular program set.
type InvokeHandler interface {
	ExecuteProgram(ctx *ExecutionContext, instruction *types.Instruction) error
}

// ExecutionContext holds the execution state for one program invocation.
type ExecutionContext struct {
	// ProgramID is the program being executed.
	ProgramID types.Pubkey

	// Accounts available to the instruction, in instruction order.
	Accounts []*AccountInfo

	// InstructionData is the raw instruction payload.
	InstructionData []byte

	// Depth of CPI calls (0 for a top-level instruction).
	Depth int

	// CallerStack holds the program IDs of callers, outermost first.
	CallerStack []types.Pubkey

	accountIndex map[types.Pubkey]int
	sink         *logSink
	meter        *computeMeter
	invoker      InvokeHandler
}

// NewExecutionContext creates a new top-level execution context.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		accountIndex:    make(map[types.Pubkey]int),
		sink:            &logSink{entries: make([]string, 0, MaxLogMessages)},
		meter:           &computeMeter{remaining: computeUnits, limit: computeUnits},
	}
	for i, acc := range accounts {
		ctx.accountIndex[acc.Pubkey] = i
	}
	return ctx
}

// SetInvokeHandler installs the handler used for cross-program
// invocations. Without one, Invoke fails.
func (ctx *ExecutionContext) SetInvokeHandler(handler InvokeHandler) {
	ctx.invoker = handler
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	return ctx.meter.consume(units)
}

// ComputeUnitsRemaining returns remaining compute units.
func (ctx *ExecutionContext) ComputeUnitsRemaining() uint64 {
	ctx.meter.mu.Lock()
	defer ctx.meter.mu.Unlock()
	return ctx.meter.remaining
}

// ComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) ComputeUnitsConsumed() uint64 {
	ctx.meter.mu.Lock()
	defer ctx.meter.mu.Unlock()
	return ctx.meter.limit - ctx.meter.remaining
}

// AddLog adds a log message.
func (ctx *ExecutionContext) AddLog(message string) error {
	return ctx.sink.add(message)
}

// Logf adds a formatted log message prefixed with the executing program.
func (ctx *ExecutionContext) Logf(format string, args ...any) {
	_ = ctx.sink.add(fmt.Sprintf("Program %s: %s", ctx.ProgramID, fmt.Sprintf(format, args...)))
}

// GetLogs returns all log messages.
func (ctx *ExecutionContext) GetLogs() []string {
	return ctx.sink.all()
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// GetWritableAccount returns a writable account by pubkey.
func (ctx *ExecutionContext) GetWritableAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return nil, err
	}
	if !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, pubkey)
	}
	return acc, nil
}

// GetSignerAccount returns a signer account by pubkey.
func (ctx *ExecutionContext) GetSignerAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return nil, err
	}
	if !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotSigner, pubkey)
	}
	return acc, nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	return len(ctx.Accounts)
}

// TransferLamports transfers lamports between accounts in this context.
func (ctx *ExecutionContext) TransferLamports(from, to types.Pubkey, amount uint64) error {
	fromAcc, err := ctx.GetWritableAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := ctx.GetWritableAccount(to)
	if err != nil {
		return err
	}
	if *fromAcc.Lamports < amount {
		return ErrInsufficientFunds
	}
	*fromAcc.Lamports -= amount
	*toAcc.Lamports += amount
	return nil
}

// ResizeAccountData resizes an account's data buffer, preserving content.
func (ctx *ExecutionContext) ResizeAccountData(pubkey types.Pubkey, newSize int) error {
	acc, err := ctx.GetWritableAccount(pubkey)
	if err != nil {
		return err
	}
	if newSize > MaxAccountDataSize {
		return fmt.Errorf("data size %d exceeds maximum %d", newSize, MaxAccountDataSize)
	}
	oldData := acc.Data
	acc.Data = make([]byte, newSize)
	if len(oldData) > 0 {
		copy(acc.Data, oldData)
	}
	return nil
}

// CheckAccountOwnership verifies an account is owned by the expected
// program.
func (ctx *ExecutionContext) CheckAccountOwnership(pubkey types.Pubkey, expectedOwner types.Pubkey) error {
	acc, err := ctx.GetAccount(pubkey)
	if err != nil {
		return err
	}
	if acc.Owner != expectedOwner {
		return fmt.Errorf("account %s owned by %s, expected %s",
			pubkey, acc.Owner, expectedOwner)
	}
	return nil
}

// IsTopLevel returns true if this is a top-level execution (not a CPI
// call).
func (ctx *ExecutionContext) IsTopLevel() bool {
	return ctx.Depth == 0
}

// Caller returns the program that invoked this one, if any.
func (ctx *ExecutionContext) Caller() (types.Pubkey, bool) {
	if len(ctx.CallerStack) == 0 {
		return types.ZeroPubkey, false
	}
	return ctx.CallerStack[len(ctx.CallerStack)-1], true
}
