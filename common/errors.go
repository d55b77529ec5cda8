package common

import "errors"

// Local validation errors. They are returned before any network call is made.
var (
	// ErrMalformedEnvelope is used when a transaction is missing a required
	// field or has a field that can't be encoded
	ErrMalformedEnvelope = errors.New("malformed transaction envelope")
	// ErrInvalidPaymasterParams is used when the paymaster input is set but
	// the paymaster address is empty
	ErrInvalidPaymasterParams = errors.New("invalid paymaster params")
	// ErrNotYetFinalized is used when finalizing a withdrawal whose L2
	// transaction has not reached the finalized status
	ErrNotYetFinalized = errors.New("withdrawal transaction not yet finalized")
	// ErrNegativeAmount is used when an amount subtraction would be negative
	ErrNegativeAmount = errors.New("amount would be negative")
	// ErrAmountOverflow is used when an amount doesn't fit in 256 bits
	ErrAmountOverflow = errors.New("amount overflows 256 bits")
)

// Errors observed from the chains or the key holder. The provider reason is
// attached when wrapping.
var (
	// ErrChainIDMismatch is used when the explicit chain id of a request
	// differs from the one reported by the chain
	ErrChainIDMismatch = errors.New("chain id mismatch")
	// ErrEstimationFailed is used when the gas estimation call fails
	ErrEstimationFailed = errors.New("gas estimation failed")
	// ErrInsufficientFunds is used when the sender can't pay value + fees
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSigningFailed is used when the signer can't produce a signature
	ErrSigningFailed = errors.New("signing failed")
	// ErrSubmissionRejected is used when the node refuses a raw transaction
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrDepositRejected is used when the L1 deposit transaction reverts
	ErrDepositRejected = errors.New("deposit rejected")
	// ErrWithdrawRejected is used when a withdrawal or its finalization reverts
	ErrWithdrawRejected = errors.New("withdraw rejected")
	// ErrTransactionReverted is used when any other transaction reverts
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrTimeout is used when a wait for a receipt or finalization times out.
	// The submitted transaction is not retracted.
	ErrTimeout = errors.New("timeout waiting for transaction")
)
