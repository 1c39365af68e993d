package lending

import "lendcore/reserve"

// stepKind distinguishes the two refresh operations tracked in a TxContext.
type stepKind uint8

const (
	stepRefreshReserve stepKind = iota
	stepRefreshObligation
)

type step struct {
	kind      stepKind
	reserveID reserve.ID
}

// TxContext models one atomic batch of operations (spec §5: "single-threaded
// cooperative per transaction"). Callers record each refresh_reserve and
// refresh_obligation call in sequence, then pass the same TxContext to a
// guarded mutating operation; the engine replays the tail of the log to
// enforce spec §4.11's refresh-sequence rule and §4.9's flash-loan pairing.
//
// A fresh TxContext models a new transaction; reuse one across every
// operation in the same atomic batch.
type TxContext struct {
	log              []step
	flashBorrows     []flashBorrowRecord
	flashBorrowCount int
}

type flashBorrowRecord struct {
	reserveID reserve.ID
	amount    uint64
	repaid    bool
}

// NewTxContext starts a fresh transaction-scoped batch.
func NewTxContext() *TxContext {
	return &TxContext{}
}

// RecordRefreshReserve appends a refresh_reserve step for reserveID.
func (tx *TxContext) RecordRefreshReserve(reserveID reserve.ID) {
	tx.log = append(tx.log, step{kind: stepRefreshReserve, reserveID: reserveID})
}

// RecordRefreshObligation appends a refresh_obligation step.
func (tx *TxContext) RecordRefreshObligation() {
	tx.log = append(tx.log, step{kind: stepRefreshObligation})
}

// requireRefreshSequence enforces spec §4.11: the log's tail must contain a
// refresh_reserve for every id in reserveIDs (order among themselves is
// free), immediately followed by one refresh_obligation, with no other step
// interleaved.
func (tx *TxContext) requireRefreshSequence(reserveIDs ...reserve.ID) error {
	if tx == nil {
		return ErrIncorrectInstructionInPosition
	}
	need := len(reserveIDs) + 1
	if len(tx.log) < need {
		return ErrIncorrectInstructionInPosition
	}
	window := tx.log[len(tx.log)-need:]
	if window[need-1].kind != stepRefreshObligation {
		return ErrIncorrectInstructionInPosition
	}
	seen := make(map[reserve.ID]bool, len(reserveIDs))
	for _, s := range window[:need-1] {
		if s.kind != stepRefreshReserve {
			return ErrIncorrectInstructionInPosition
		}
		seen[s.reserveID] = true
	}
	for _, id := range reserveIDs {
		if !seen[id] {
			return ErrIncorrectInstructionInPosition
		}
	}
	return nil
}

// recordFlashBorrow registers a flash borrow, rejecting a second concurrent
// one in the same transaction (spec §4.9: MultipleFlashBorrows).
func (tx *TxContext) recordFlashBorrow(reserveID reserve.ID, amount uint64) error {
	for _, fb := range tx.flashBorrows {
		if !fb.repaid {
			return ErrMultipleFlashBorrows
		}
	}
	tx.flashBorrows = append(tx.flashBorrows, flashBorrowRecord{reserveID: reserveID, amount: amount})
	return nil
}

// matchFlashRepay pairs a flash repay against the most recent unpaid flash
// borrow for reserveID with a matching amount (spec §4.9).
func (tx *TxContext) matchFlashRepay(reserveID reserve.ID, amount uint64) error {
	for i := len(tx.flashBorrows) - 1; i >= 0; i-- {
		fb := tx.flashBorrows[i]
		if fb.repaid {
			continue
		}
		if fb.reserveID != reserveID || fb.amount != amount {
			return ErrInvalidFlashRepay
		}
		tx.flashBorrows[i].repaid = true
		return nil
	}
	return ErrNoFlashRepayFound
}

// Finalize closes out the batch, rejecting it if any flash_borrow in the
// log never found its matching flash_repay (spec §4.9: a flash loan must
// be repaid within the same transaction it was borrowed in). Callers that
// use flash loans must call this once after replaying every instruction in
// the transaction, before committing any of the batch's side effects.
func (tx *TxContext) Finalize() error {
	if tx == nil {
		return nil
	}
	for _, fb := range tx.flashBorrows {
		if !fb.repaid {
			return ErrNoFlashRepayFound
		}
	}
	return nil
}
