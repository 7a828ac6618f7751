package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventCustomerSynced = "CustomerSynced"
	EventVendorSynced   = "VendorSynced"
	EventItemSynced     = "ItemSynced"
	EventInvoiceSynced  = "InvoiceSynced"
	EventLineSynced     = "InvoiceLineSynced"
	EventPaymentSynced  = "PaymentSynced"
	EventBatchApplied   = "ReconBatchApplied"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	TenantID     string          `json:"tenant_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope with a fresh event id.
func NewEnvelope(eventType string, tenantID uuid.UUID, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "ledgerkite-api",
		Payload:      raw,
	}
	if tenantID != uuid.Nil {
		env.TenantID = tenantID.String()
	}
	return env, nil
}

// BatchAppliedPayload summarises a reconciliation batch.
type BatchAppliedPayload struct {
	Kind    string `json:"kind"`
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// RecordSyncedPayload announces a single record pushed outbound.
type RecordSyncedPayload struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}
