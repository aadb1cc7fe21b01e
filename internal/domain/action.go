package domain

// TransferStatus is the terminal state of one attempted transfer.
type TransferStatus string

const (
	// TransferSkipped means the transfer was never attempted (zero
	// amount, below minimum, locked, already at target...).
	TransferSkipped TransferStatus = "skipped"
	// TransferPrepared means dry-run: computed but not submitted.
	TransferPrepared TransferStatus = "prepared"
	// TransferSubmitted means the ledger accepted the transfer.
	TransferSubmitted TransferStatus = "submitted"
	// TransferError means all attempts were exhausted or a non-retryable
	// error occurred.
	TransferError TransferStatus = "error"
)

// TransferAction is the outcome record of one attempted deposit or
// withdrawal. UsdMicros is the amount actually submitted (or the last
// attempted amount on error), integer micro-USD.
type TransferAction struct {
	VaultAddress string
	UsdMicros    int64
	Status       TransferStatus
	Reason       string // set for skipped
	Error        string // set for error
}

// Submitted reports whether the ledger accepted this transfer.
func (a TransferAction) Submitted() bool { return a.Status == TransferSubmitted }
