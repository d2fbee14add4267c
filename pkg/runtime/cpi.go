package runtime

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/types"
)

// Invoke performs a cross-program invocation into programID with the given
// account metas and instruction data.
//
// Every meta must name an account already present in the caller's context;
// a program cannot conjure accounts its own caller did not provide. The
// callee runs against cloned account state, and writable-account changes
// are propagated back to the caller only if the callee succeeds, so a
// failed CPI leaves the caller's view untouched.
//
// signerSeeds authorizes program-derived addresses to act as signers for
// the callee: each seed group that derives (under the calling program) to
// an account named by a signer meta marks that account as signed.
func (ctx *ExecutionContext) Invoke(programID types.Pubkey, metas []types.AccountMeta, data []byte, signerSeeds ...[][]byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if ctx.invoker == nil {
		return ErrNoInvokeHandler
	}
	if err := ctx.ConsumeComputeUnits(CUPerCPI); err != nil {
		return err
	}

	// Collect PDA signer privileges granted by the calling program.
	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := CreateProgramAddress(seeds, ctx.ProgramID)
		if err != nil {
			return fmt.Errorf("invalid signer seeds: %w", err)
		}
		pdaSigners[pda] = true
	}

	// Resolve and clone the callee's account view. An account named by
	// several metas gets a single shared clone with the union of the
	// requested privileges, so writes through one position are visible
	// through the others.
	calleeAccounts := make([]*AccountInfo, len(metas))
	callerAccounts := make([]*AccountInfo, len(metas))
	clones := make(map[types.Pubkey]*AccountInfo, len(metas))
	for i, meta := range metas {
		acc, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return fmt.Errorf("CPI account %s: %w", meta.Pubkey, ErrAccountNotFound)
		}
		if meta.IsWritable && !acc.IsWritable {
			return fmt.Errorf("%w: %s", ErrAccountNotWritable, meta.Pubkey)
		}
		if meta.IsSigner && !acc.IsSigner && !pdaSigners[meta.Pubkey] {
			return fmt.Errorf("%w: %s", ErrAccountNotSigner, meta.Pubkey)
		}

		clone, seen := clones[meta.Pubkey]
		if !seen {
			clone = acc.Clone()
			clone.IsWritable = false
			clone.IsSigner = false
			clones[meta.Pubkey] = clone
		}
		clone.IsWritable = clone.IsWritable || meta.IsWritable
		clone.IsSigner = clone.IsSigner || (meta.IsSigner && (acc.IsSigner || pdaSigners[meta.Pubkey]))

		calleeAccounts[i] = clone
		callerAccounts[i] = acc
	}

	child := ctx.createChildContext(programID, calleeAccounts, data)

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", programID, child.Depth))

	err := ctx.invoker.ExecuteProgram(child, &types.Instruction{
		ProgramID: programID,
		Accounts:  metas,
		Data:      data,
	})
	if err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", programID, err))
		return err
	}
	_ = ctx.AddLog(fmt.Sprintf("Program %s success", programID))

	return ctx.propagateAccountChanges(callerAccounts, calleeAccounts, metas)
}

// createChildContext creates the callee's execution context. Logs, the
// compute meter, and the invoke handler are shared with the parent.
func (ctx *ExecutionContext) createChildContext(programID types.Pubkey, accounts []*AccountInfo, data []byte) *ExecutionContext {
	child := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: data,
		Depth:           ctx.Depth + 1,
		CallerStack:     append(append([]types.Pubkey{}, ctx.CallerStack...), ctx.ProgramID),
		accountIndex:    make(map[types.Pubkey]int, len(accounts)),
		sink:            ctx.sink,
		meter:           ctx.meter,
		invoker:         ctx.invoker,
	}
	for i, acc := range accounts {
		child.accountIndex[acc.Pubkey] = i
	}
	return child
}

// propagateAccountChanges copies account modifications from the callee
// back to the caller. Only accounts the callee declared writable are
// updated.
func (ctx *ExecutionContext) propagateAccountChanges(callerAccounts, calleeAccounts []*AccountInfo, metas []types.AccountMeta) error {
	for i, meta := range metas {
		if !meta.IsWritable {
			continue
		}

		callerAcc := callerAccounts[i]
		calleeAcc := calleeAccounts[i]

		if !callerAcc.IsWritable {
			return fmt.Errorf("%w: %s", ErrReadOnlyModified, calleeAcc.Pubkey)
		}

		*callerAcc.Lamports = *calleeAcc.Lamports
		callerAcc.Owner = calleeAcc.Owner

		if len(calleeAcc.Data) != len(callerAcc.Data) {
			callerAcc.Data = make([]byte, len(calleeAcc.Data))
		}
		copy(callerAcc.Data, calleeAcc.Data)
	}
	return nil
}
