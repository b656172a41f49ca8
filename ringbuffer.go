package terminal

import (
	"sync"
	"time"
)

// RingBufferStats captures summary information about the history buffer.
type RingBufferStats struct {
	TotalChunks     int
	UsedChunks      int
	TotalBytes      int64
	WriteCount      int64
	OldestTimestamp int64
	NewestTimestamp int64
}

// OutputRingBuffer stores raw PTY output in fixed-count FIFO chunks so
// late-attaching clients can replay recent history. Sequence numbers are
// monotonic per buffer and survive chunk eviction.
type OutputRingBuffer struct {
	chunks []OutputChunk
	head   int
	tail   int
	size   int
	full   bool

	totalBytes   int64
	writeCount   int64
	nextSequence int64

	mutex sync.RWMutex
}

// NewOutputRingBuffer creates a ring buffer with the provided capacity.
func NewOutputRingBuffer(size int) *OutputRingBuffer {
	if size <= 0 {
		size = 2048
	}

	return &OutputRingBuffer{
		chunks:       make([]OutputChunk, size),
		size:         size,
		nextSequence: 1,
	}
}

// Write appends a copy of data to the ring buffer.
func (rb *OutputRingBuffer) Write(data []byte) {
	if len(data) == 0 {
		return
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	rb.writeOwned(dataCopy)
}

func (rb *OutputRingBuffer) writeOwned(data []byte) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	// A full buffer overwrites the oldest chunk at head. Adjust byte
	// accounting before overwriting so TotalBytes stays correct.
	if rb.full {
		rb.totalBytes -= int64(rb.chunks[rb.head].Size)
		rb.tail = (rb.tail + 1) % rb.size
	}

	rb.chunks[rb.head] = OutputChunk{
		Sequence:  rb.nextSequence,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Size:      len(data),
	}

	rb.totalBytes += int64(len(data))
	rb.writeCount++
	rb.nextSequence++

	rb.head = (rb.head + 1) % rb.size
	rb.full = rb.head == rb.tail
}

// ReadAll returns all chunks in chronological order.
func (rb *OutputRingBuffer) ReadAll() []OutputChunk {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	return rb.copyChunksFrom(0)
}

// ReadFromSequence returns chunks with Sequence >= fromSeq in chronological
// order.
func (rb *OutputRingBuffer) ReadFromSequence(fromSeq int64) []OutputChunk {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	return rb.copyChunksFrom(fromSeq)
}

func (rb *OutputRingBuffer) copyChunksFrom(fromSeq int64) []OutputChunk {
	if rb.isEmpty() {
		return []OutputChunk{}
	}

	used := rb.usedChunks()
	result := make([]OutputChunk, 0, used)
	for i := 0; i < used; i++ {
		chunk := rb.chunks[(rb.tail+i)%rb.size]
		if chunk.Data == nil || chunk.Sequence < fromSeq {
			continue
		}
		cp := chunk
		cp.Data = make([]byte, len(chunk.Data))
		copy(cp.Data, chunk.Data)
		result = append(result, cp)
	}

	return result
}

// Stats returns snapshot statistics for the buffer.
func (rb *OutputRingBuffer) Stats() RingBufferStats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	used := rb.usedChunks()
	var oldest, newest int64
	if used > 0 {
		oldest = rb.chunks[rb.tail].Timestamp
		newestIndex := rb.head - 1
		if newestIndex < 0 {
			newestIndex = rb.size - 1
		}
		newest = rb.chunks[newestIndex].Timestamp
	}

	return RingBufferStats{
		TotalChunks:     rb.size,
		UsedChunks:      used,
		TotalBytes:      rb.totalBytes,
		WriteCount:      rb.writeCount,
		OldestTimestamp: oldest,
		NewestTimestamp: newest,
	}
}

// Clear resets the ring buffer contents. Sequence numbering restarts at 1.
func (rb *OutputRingBuffer) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	for i := range rb.chunks {
		rb.chunks[i] = OutputChunk{}
	}

	rb.head = 0
	rb.tail = 0
	rb.full = false
	rb.totalBytes = 0
	rb.nextSequence = 1
}

func (rb *OutputRingBuffer) isEmpty() bool {
	return !rb.full && rb.head == rb.tail
}

func (rb *OutputRingBuffer) usedChunks() int {
	if rb.full {
		return rb.size
	}
	if rb.head >= rb.tail {
		return rb.head - rb.tail
	}
	return rb.size - rb.tail + rb.head
}
