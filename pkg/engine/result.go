package engine

import (
	"fmt"

	"github.com/fortiblox/x1-stratus/pkg/accounts"
	"github.com/fortiblox/x1-stratus/pkg/types"
)

// BatchResult aggregates the results of executing a batch of
// transactions in order.
type BatchResult struct {
	// TransactionResults holds the result of each transaction, in
	// submission order.
	TransactionResults []*types.TransactionResult

	// AccountDeltas contains all account changes committed by the batch.
	AccountDeltas []types.AccountDelta

	// StateRoot is the accounts state root after the batch.
	StateRoot types.Hash

	// SuccessCount is the number of successful transactions.
	SuccessCount int

	// FailureCount is the number of failed transactions.
	FailureCount int

	// TotalComputeUnits is the total compute units consumed.
	TotalComputeUnits types.ComputeUnits
}

// NewBatchResult creates an empty BatchResult.
func NewBatchResult() *BatchResult {
	return &BatchResult{
		TransactionResults: make([]*types.TransactionResult, 0),
		AccountDeltas:      make([]types.AccountDelta, 0),
	}
}

// AddTransactionResult folds one transaction result into the batch.
func (br *BatchResult) AddTransactionResult(result *types.TransactionResult) {
	br.TransactionResults = append(br.TransactionResults, result)
	if result.Success {
		br.SuccessCount++
	} else {
		br.FailureCount++
	}
	br.TotalComputeUnits += result.ComputeUnits
	br.AccountDeltas = append(br.AccountDeltas, result.AccountDeltas...)
}

// TotalTransactions returns the number of transactions processed.
func (br *BatchResult) TotalTransactions() int {
	return br.SuccessCount + br.FailureCount
}

// AllSuccessful returns true if every transaction succeeded.
func (br *BatchResult) AllSuccessful() bool {
	return br.FailureCount == 0
}

// FailedResults returns only the failed transaction results.
func (br *BatchResult) FailedResults() []*types.TransactionResult {
	failed := make([]*types.TransactionResult, 0, br.FailureCount)
	for _, result := range br.TransactionResults {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// CollectLogs collects the logs of every transaction in order.
func (br *BatchResult) CollectLogs() []string {
	var logs []string
	for _, result := range br.TransactionResults {
		logs = append(logs, result.Logs...)
	}
	return logs
}

// Summary returns a one-line description of the batch.
func (br *BatchResult) Summary() string {
	return fmt.Sprintf("BatchResult{Success=%d, Failed=%d, ComputeUnits=%d, AccountDeltas=%d, StateRoot=%s}",
		br.SuccessCount, br.FailureCount, br.TotalComputeUnits, len(br.AccountDeltas), br.StateRoot)
}

// ExecuteBatch executes transactions in order and computes the resulting
// accounts state root. Individual transaction failures do not stop the
// batch; each is recorded in its result.
func (e *Executor) ExecuteBatch(txs []*types.Transaction) (*BatchResult, error) {
	batch := NewBatchResult()
	for _, tx := range txs {
		result, err := e.ExecuteTransaction(tx)
		if err != nil {
			return nil, err
		}
		batch.AddTransactionResult(result)
	}

	root, err := accounts.ComputeStateRoot(e.db)
	if err != nil {
		return nil, fmt.Errorf("compute state root: %w", err)
	}
	batch.StateRoot = root
	return batch, nil
}
