package buffer

// OverflowPolicy selects what Write does when the buffer is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room. This is the
	// default and what the readout feed uses: losing the oldest
	// unprocessed event beats stalling the NATS consumer.
	DropOldest OverflowPolicy = iota

	// DropNewest rejects the incoming item when full.
	DropNewest

	// Block makes Write wait until space is available.
	Block
)

var policyNames = [...]string{
	DropOldest: "DropOldest",
	DropNewest: "DropNewest",
	Block:      "Block",
}

func (p OverflowPolicy) String() string {
	if p >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "Unknown"
}

// DropCallback receives every item discarded by the overflow policy or
// by Clear.
type DropCallback[T any] func(item T)
