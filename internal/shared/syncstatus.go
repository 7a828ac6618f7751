package shared

// SyncStatus tracks whether a row has been pushed to the remote side.
// Transitions are PENDING -> SYNCED or PENDING -> FAILED; any field
// mutation resets the row to PENDING.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSynced  SyncStatus = "SYNCED"
	SyncFailed  SyncStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSynced, SyncFailed:
		return true
	}
	return false
}
