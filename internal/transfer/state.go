package transfer

// State is a step of the transfer lifecycle. Senders pass through
// SendingMetadata, receivers through AwaitingMetadata.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSendingMetadata
	StateAwaitingMetadata
	StateStreamingData
	StateFinalizing
	StateCompleted
	StateAborted
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateSendingMetadata:
		return "SendingMetadata"
	case StateAwaitingMetadata:
		return "AwaitingMetadata"
	case StateStreamingData:
		return "StreamingData"
	case StateFinalizing:
		return "Finalizing"
	case StateCompleted:
		return "Completed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}
