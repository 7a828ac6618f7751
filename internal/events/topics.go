package events

const (
	TopicCustomerSynced = "ledger.customer.synced"
	TopicVendorSynced   = "ledger.vendor.synced"
	TopicItemSynced     = "ledger.item.synced"
	TopicInvoiceSynced  = "ledger.invoice.synced"
	TopicLineSynced     = "ledger.invoice_line.synced"
	TopicPaymentSynced  = "ledger.payment.synced"
	TopicBatchApplied   = "ledger.recon.batch_applied"
)

// PartitionKey keys messages by tenant so all events of one tenant keep
// their relative order.
func PartitionKey(tenantID string) []byte { return []byte(tenantID) }
