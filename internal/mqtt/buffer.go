package mqtt

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// defaultBufferSize bounds how many winner/system messages survive an outage.
const defaultBufferSize = 64

// ringBuffer is a fixed-capacity FIFO that keeps the newest messages.
// Not safe for concurrent use; the caller synchronizes.
type ringBuffer struct {
	buf   []bufferedMsg
	head  int // next write position
	count int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

// push appends msg, overwriting the oldest entry when full.
// It reports whether an entry was dropped.
func (r *ringBuffer) push(msg bufferedMsg) bool {
	dropped := r.count == len(r.buf)
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if !dropped {
		r.count++
	}
	return dropped
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	out := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	clear(r.buf)
	r.count = 0
	r.head = 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
