package session

// DefaultBufferSize is the default size of each attempt buffer.
const DefaultBufferSize = 1024

// BufferSizes sets the size of each buffer. Zero means DefaultBufferSize.
type BufferSizes struct {
	SocketRx    int
	SocketTx    int
	RecordRead  int
	RecordWrite int
}

// Buffers are the four fixed regions an attempt borrows.
// They are allocated once and reused by every attempt. Their contents are
// overwritten on use and never assumed zeroed.
type Buffers struct {
	SocketRx    []byte
	SocketTx    []byte
	RecordRead  []byte
	RecordWrite []byte
}

// NewBuffers allocates the attempt buffers.
func NewBuffers(sizes BufferSizes) *Buffers {
	return &Buffers{
		SocketRx:    make([]byte, orDefault(sizes.SocketRx)),
		SocketTx:    make([]byte, orDefault(sizes.SocketTx)),
		RecordRead:  make([]byte, orDefault(sizes.RecordRead)),
		RecordWrite: make([]byte, orDefault(sizes.RecordWrite)),
	}
}

// Total returns the combined size of all buffers.
func (b *Buffers) Total() int {
	return len(b.SocketRx) + len(b.SocketTx) + len(b.RecordRead) + len(b.RecordWrite)
}

func orDefault(n int) int {
	if n <= 0 {
		return DefaultBufferSize
	}
	return n
}
