package common

// DepositState is the state of a deposit (L1 -> L2). The caller may persist
// it along with the L1 transaction hash to resume later.
type DepositState int

// Deposit states
const (
	DepositBuilt DepositState = iota
	DepositSubmitted
	DepositL1Included
	DepositL2Included
)

func (s DepositState) String() string {
	switch s {
	case DepositBuilt:
		return "built"
	case DepositSubmitted:
		return "submitted"
	case DepositL1Included:
		return "l1_included"
	case DepositL2Included:
		return "l2_included"
	default:
		return "unknown"
	}
}

// WithdrawalState is the state of a withdrawal (L2 -> L1) across its two
// phases. Phase 2 is only valid from WithdrawalL2Finalized.
type WithdrawalState int

// Withdrawal states
const (
	WithdrawalBuilt WithdrawalState = iota
	WithdrawalSubmitted
	WithdrawalL2Included
	WithdrawalL2Finalized
	WithdrawalFinalizationSubmitted
	WithdrawalL1Included
)

func (s WithdrawalState) String() string {
	switch s {
	case WithdrawalBuilt:
		return "built"
	case WithdrawalSubmitted:
		return "submitted"
	case WithdrawalL2Included:
		return "l2_included"
	case WithdrawalL2Finalized:
		return "l2_finalized"
	case WithdrawalFinalizationSubmitted:
		return "finalization_submitted"
	case WithdrawalL1Included:
		return "l1_included"
	default:
		return "unknown"
	}
}
