// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package history

import "sync"

// Guarded serializes access to a Buffer shared between goroutines. Change
// callbacks run while the lock is held and must not call back into the
// Guarded.
type Guarded struct {
	mu  sync.Mutex
	buf *Buffer
}

func NewGuarded(buf *Buffer) *Guarded {
	return &Guarded{buf: buf}
}

// Do runs fn with exclusive access to the buffer.
func (g *Guarded) Do(fn func(b *Buffer)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.buf)
}

// Snapshot returns the serializable form of the buffer.
func (g *Guarded) Snapshot() Snapshot {
	var s Snapshot
	g.Do(func(b *Buffer) { s = b.ToSerializable() })
	return s
}
