// Package models defines the core data structures for budgets, remote
// documents and the cross-device activity feed.
package models

// EncryptedEnvelope is a ciphertext plus the IV it was sealed with.
// Opaque to everything except the crypto package; the IV is fresh per
// encryption call and never reused with the same key.
type EncryptedEnvelope struct {
	// Ciphertext is the AES-GCM sealed payload.
	Ciphertext []byte `json:"ciphertext"`
	// IV is the 96-bit nonce used for this envelope.
	IV []byte `json:"iv"`
}

// Author identifies the device/user that produced a write.
type Author struct {
	// ID is a stable identifier for the author.
	ID string `json:"id"`
	// UserName is the display name shown in the activity feed.
	UserName string `json:"userName"`
	// UserColor is the color tag used to distinguish household members.
	UserColor string `json:"userColor,omitempty"`
	// DeviceFingerprint identifies the writing device.
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	// LastSeen is an RFC3339 timestamp of the author's last write.
	LastSeen string `json:"lastSeen,omitempty"`
}

// ActivityRecord is one entry in the cross-device change feed.
type ActivityRecord struct {
	// ID deduplicates records when logs from multiple writers merge.
	ID string `json:"id"`
	// Type categorizes the change, see the Activity* constants.
	Type string `json:"type"`
	// UserName and UserColor attribute the change.
	UserName  string `json:"userName"`
	UserColor string `json:"userColor,omitempty"`
	// Timestamp is RFC3339; the merged feed is ordered descending by it.
	Timestamp string `json:"timestamp"`
	// Details holds free-form metadata about the change.
	Details map[string]any `json:"details,omitempty"`
}

// Activity type identifiers.
const (
	ActivityDataSave      = "data_save"
	ActivitySyncCompleted = "sync_completed"
	ActivityDataImported  = "data_imported"
	ActivityResetRemote   = "reset_remote"
)

// RemoteDocument is the single record per budget identity held by the
// remote store. It is mutated only via whole-document overwrite-with-merge.
type RemoteDocument struct {
	// EncryptedPayload carries the budget data; the store never sees plaintext.
	EncryptedPayload *EncryptedEnvelope `json:"encryptedPayload,omitempty"`
	// LastUpdated is the server-assigned timestamp in unix milliseconds,
	// strictly monotonic per budget.
	LastUpdated int64 `json:"lastUpdated"`
	// Author is the last writer.
	Author *Author `json:"author,omitempty"`
	// Activity is the most recent slice of the change feed (capped at 10
	// on the wire).
	Activity []ActivityRecord `json:"activity,omitempty"`
	// Version counts writes to this document.
	Version int64 `json:"version"`
	// Cleared marks a reset marker document. A cleared document is never
	// applied as real budget data.
	Cleared       bool   `json:"cleared,omitempty"`
	ClearedAt     string `json:"clearedAt,omitempty"`
	ClearedReason string `json:"clearedReason,omitempty"`
}

// Envelope is a named allocation bucket in the budget. Unrelated to the
// cryptographic EncryptedEnvelope.
type Envelope struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CurrentBalance float64 `json:"currentBalance"`
	MonthlyAmount  float64 `json:"monthlyAmount,omitempty"`
	Category       string  `json:"category,omitempty"`
}

// Bill is a recurring obligation tracked against an envelope.
type Bill struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	DueDate    string  `json:"dueDate,omitempty"`
	EnvelopeID string  `json:"envelopeId,omitempty"`
	Paid       bool    `json:"paid,omitempty"`
}

// Transaction is a single ledger entry.
type Transaction struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description,omitempty"`
	EnvelopeID  string  `json:"envelopeId,omitempty"`
}

// SavingsGoal tracks progress toward a target amount.
type SavingsGoal struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	TargetAmount  float64 `json:"targetAmount"`
	CurrentAmount float64 `json:"currentAmount"`
	TargetDate    string  `json:"targetDate,omitempty"`
}

// Debt is an outstanding balance with its payment terms.
type Debt struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Balance        float64 `json:"balance"`
	InterestRate   float64 `json:"interestRate,omitempty"`
	MinimumPayment float64 `json:"minimumPayment,omitempty"`
}

// Paycheck is one processed income event.
type Paycheck struct {
	ID     string  `json:"id"`
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
	Payer  string  `json:"payer,omitempty"`
}

// BudgetData is the plaintext payload the engine syncs. Its fields are the
// whitelist of what may be merged into the remote document; anything else
// is dropped at (de)serialization.
type BudgetData struct {
	Envelopes       []Envelope    `json:"envelopes"`
	Bills           []Bill        `json:"bills"`
	Transactions    []Transaction `json:"transactions"`
	SavingsGoals    []SavingsGoal `json:"savingsGoals"`
	Debts           []Debt        `json:"debts"`
	PaycheckHistory []Paycheck    `json:"paycheckHistory"`
	UnassignedCash  float64       `json:"unassignedCash"`
	ActualBalance   float64       `json:"actualBalance"`
	// LastModified is the local wall-clock of the last mutation, unix ms.
	LastModified int64 `json:"lastModified"`
}

// IsEmpty reports whether the budget carries no meaningful records.
func (d *BudgetData) IsEmpty() bool {
	return len(d.Envelopes) == 0 && len(d.Bills) == 0 && len(d.Transactions) == 0 &&
		len(d.SavingsGoals) == 0 && len(d.Debts) == 0 && len(d.PaycheckHistory) == 0
}
