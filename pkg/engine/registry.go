package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-stratus/pkg/programs/associatedtoken"
	"github.com/fortiblox/x1-stratus/pkg/programs/system"
	"github.com/fortiblox/x1-stratus/pkg/programs/token"
	"github.com/fortiblox/x1-stratus/pkg/runtime"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Registry errors
var (
	// ErrProgramNotFound indicates the program is not registered.
	ErrProgramNotFound = errors.New("program not found")

	// ErrInvalidInstruction indicates an invalid instruction.
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// Program is the interface every registered program implements: execute
// one instruction payload against an execution context.
type Program interface {
	Execute(ctx *runtime.ExecutionContext, instruction []byte) error
}

// ProgramFunc is a function adapter for Program.
type ProgramFunc func(ctx *runtime.ExecutionContext, instruction []byte) error

// Execute implements Program.
func (f ProgramFunc) Execute(ctx *runtime.ExecutionContext, instruction []byte) error {
	return f(ctx, instruction)
}

// ProgramRegistry maps program IDs to their implementations. It also
// serves as the runtime's invoke handler, so cross-program invocations
// resolve against the same program set as top-level instructions.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
	names    map[types.Pubkey]string
}

// NewProgramRegistry creates an empty program registry.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		programs: make(map[types.Pubkey]Program),
		names:    make(map[types.Pubkey]string),
	}
}

// Register registers a program for the given program ID.
func (r *ProgramRegistry) Register(id types.Pubkey, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
}

// RegisterWithName registers a program with a name for logs and errors.
func (r *ProgramRegistry) RegisterWithName(id types.Pubkey, name string, program Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[id] = program
	r.names[id] = name
}

// Get returns the program registered for the given ID.
func (r *ProgramRegistry) Get(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	program, ok := r.programs[id]
	return program, ok
}

// Name returns the registered name for the given ID.
func (r *ProgramRegistry) Name(id types.Pubkey) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Has checks whether a program is registered.
func (r *ProgramRegistry) Has(id types.Pubkey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.programs[id]
	return ok
}

// List returns all registered program IDs.
func (r *ProgramRegistry) List() []types.Pubkey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.Pubkey, 0, len(r.programs))
	for id := range r.programs {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered programs.
func (r *ProgramRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

// ExecuteProgram implements runtime.InvokeHandler: it dispatches an
// instruction to the registered program.
func (r *ProgramRegistry) ExecuteProgram(ctx *runtime.ExecutionContext, instruction *types.Instruction) error {
	if instruction == nil {
		return ErrInvalidInstruction
	}
	program, ok := r.Get(instruction.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, instruction.ProgramID)
	}
	return program.Execute(ctx, instruction.Data)
}

// RegisterBuiltins registers the built-in program set: system, token,
// and associated token. Deployment-specific programs (issuance,
// metadata) are registered separately with their configured IDs.
func RegisterBuiltins(registry *ProgramRegistry) {
	registry.RegisterWithName(types.SystemProgramID, "System Program", system.New())
	registry.RegisterWithName(types.TokenProgramID, "Token Program", token.New())
	registry.RegisterWithName(types.AssociatedTokenProgramID, "Associated Token Program", associatedtoken.New())
}
