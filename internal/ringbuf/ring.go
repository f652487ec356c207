/**
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ringbuf provides a fixed-capacity single-producer/single-consumer
// sample queue that bridges audio decoding and the audio driver callback.
package ringbuf

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultCapacity is the default number of interleaved samples held.
const DefaultCapacity = 8192

var (
	// ErrCapacity is returned by New for a capacity that is not a power of two.
	ErrCapacity = errors.New("ring capacity must be a positive power of two")
	// ErrChunkTooLarge is returned for a chunk that exceeds the total capacity
	// and therefore can never be pushed.
	ErrChunkTooLarge = errors.New("chunk exceeds ring capacity")
)

// Buffer is a lock-free SPSC ring of float32 samples. Exactly one goroutine
// may call TryPush and exactly one may call PopOrSilence. The producer only
// writes cells in [write, read+cap) and the consumer only reads cells in
// [read, write), so the two never touch the same cell at the same time.
type Buffer struct {
	buf  []float32
	mask uint64

	read      atomic.Uint64
	write     atomic.Uint64
	underruns atomic.Uint64
}

// New allocates a ring holding capacity samples.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	return &Buffer{
		buf:  make([]float32, capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// Cap returns the capacity in samples.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Len returns the number of samples waiting to be consumed.
func (b *Buffer) Len() int {
	return int(b.write.Load() - b.read.Load())
}

// Free returns the number of samples that can be pushed without waiting.
func (b *Buffer) Free() int {
	return b.Cap() - b.Len()
}

// TryPush appends the whole chunk or nothing. It returns false when there is
// not enough free space, leaving unread samples untouched.
func (b *Buffer) TryPush(chunk []float32) (bool, error) {
	if len(chunk) > len(b.buf) {
		return false, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(chunk), len(b.buf))
	}
	w := b.write.Load()
	r := b.read.Load()
	if uint64(len(b.buf))-(w-r) < uint64(len(chunk)) {
		return false, nil
	}
	for i, s := range chunk {
		b.buf[(w+uint64(i))&b.mask] = s
	}
	// publish after the cells are written
	b.write.Store(w + uint64(len(chunk)))
	return true, nil
}

// PopOrSilence removes and returns the oldest sample, or 0 when the ring is
// empty. It never blocks.
func (b *Buffer) PopOrSilence() float32 {
	r := b.read.Load()
	if r == b.write.Load() {
		b.underruns.Add(1)
		return 0
	}
	s := b.buf[r&b.mask]
	b.read.Store(r + 1)
	return s
}

// Underruns returns how many times PopOrSilence substituted silence.
func (b *Buffer) Underruns() uint64 {
	return b.underruns.Load()
}
