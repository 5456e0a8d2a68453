package stash

// State represents the synchronization state of a Binding.
type State int32

const (
	// StatePending indicates the Binding has not hydrated yet.
	StatePending State = iota

	// StateEmpty indicates the durable slot was absent at hydration. The
	// fallback is in memory and nothing has been persisted.
	StateEmpty

	// StateSynced indicates the in-memory value matches the durable slot,
	// either because it was hydrated from it or because the last write
	// persisted successfully.
	StateSynced

	// StateDegraded indicates hydration failed because the durable slot was
	// corrupted or the backend was unavailable. The fallback is in memory and
	// the durable slot was left untouched.
	StateDegraded

	// StateUnsynced indicates the last write updated memory but could not be
	// persisted.
	StateUnsynced

	// StateClosed indicates the Binding was closed and no longer accepts writes.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEmpty:
		return "empty"
	case StateSynced:
		return "synced"
	case StateDegraded:
		return "degraded"
	case StateUnsynced:
		return "unsynced"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
