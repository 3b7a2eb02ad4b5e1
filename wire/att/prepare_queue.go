package att

// DefaultPrepareQueueLimit is the number of Prepare Write fragments a
// connection may queue before Execute Write.
const DefaultPrepareQueueLimit = 32

// preparedWrite is one queued Prepare Write Request.
type preparedWrite struct {
	handle Handle
	offset uint16
	value  []byte
}

// PreparedValue is the reassembled result of the fragments queued for one
// handle. Offset is where the first fragment starts in the stored value.
type PreparedValue struct {
	Handle Handle
	Offset uint16
	Value  []byte
}

// prepareQueue holds one connection's pending long writes. It is only
// touched from the receive loop and therefore not locked.
type prepareQueue struct {
	limit   int
	entries []preparedWrite
}

func newPrepareQueue(limit int) *prepareQueue {
	if limit <= 0 {
		limit = DefaultPrepareQueueLimit
	}
	return &prepareQueue{limit: limit}
}

// Add queues a fragment. Fragments for a handle must be contiguous: each one
// starts where the previous one for the same handle ended.
func (q *prepareQueue) Add(h Handle, offset uint16, value []byte) error {
	if len(q.entries) >= q.limit {
		return ErrPrepareQueueFull
	}

	// Verify offset matches expected position
	var prev *preparedWrite
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].handle == h {
			prev = &q.entries[i]
			break
		}
	}
	if prev != nil && int(offset) != int(prev.offset)+len(prev.value) {
		return ErrInvalidOffset
	}

	q.entries = append(q.entries, preparedWrite{handle: h, offset: offset, value: clone(value)})
	return nil
}

// Values reassembles the queue into one value per handle, in the order the
// handles were first prepared.
func (q *prepareQueue) Values() []PreparedValue {
	var out []PreparedValue
	index := make(map[Handle]int)
	for _, e := range q.entries {
		i, ok := index[e.handle]
		if !ok {
			index[e.handle] = len(out)
			out = append(out, PreparedValue{Handle: e.handle, Offset: e.offset, Value: clone(e.value)})
			continue
		}
		out[i].Value = append(out[i].Value, e.value...)
	}
	return out
}

// Len returns the number of queued fragments.
func (q *prepareQueue) Len() int { return len(q.entries) }

// Reset drops every queued fragment.
func (q *prepareQueue) Reset() { q.entries = nil }
