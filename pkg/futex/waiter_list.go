// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package futex

// waiterList is an intrusive list of Waiters. Entries can be added to or
// removed from the list in O(1) time and with no additional memory
// allocations.
//
// The zero value for waiterList is an empty list ready to use.
//
// To iterate over a list (where l is a waiterList):
//
//	for w := l.Front(); w != nil; w = w.Next() {
//		// do something with w.
//	}
type waiterList struct {
	head *Waiter
	tail *Waiter
}

// Front returns the first element of list l or nil.
//
//go:nosplit
func (l *waiterList) Front() *Waiter {
	return l.head
}

// PushBack inserts the element w at the back of list l.
//
//go:nosplit
func (l *waiterList) PushBack(w *Waiter) {
	w.SetNext(nil)
	w.SetPrev(l.tail)
	if l.tail != nil {
		l.tail.SetNext(w)
	} else {
		l.head = w
	}
	l.tail = w
}

// Remove removes w from l.
//
//go:nosplit
func (l *waiterList) Remove(w *Waiter) {
	prev := w.Prev()
	next := w.Next()

	if prev != nil {
		prev.SetNext(next)
	} else if l.head == w {
		l.head = next
	}

	if next != nil {
		next.SetPrev(prev)
	} else if l.tail == w {
		l.tail = prev
	}

	w.SetNext(nil)
	w.SetPrev(nil)
}

// waiterEntry is a default implementation of the list linkage. It should be
// embedded into Waiter.
type waiterEntry struct {
	next *Waiter
	prev *Waiter
}

// Next returns the entry that follows e in the list.
//
//go:nosplit
func (e *waiterEntry) Next() *Waiter {
	return e.next
}

// Prev returns the entry that precedes e in the list.
//
//go:nosplit
func (e *waiterEntry) Prev() *Waiter {
	return e.prev
}

// SetNext assigns 'entry' as the entry that follows e in the list.
//
//go:nosplit
func (e *waiterEntry) SetNext(w *Waiter) {
	e.next = w
}

// SetPrev assigns 'entry' as the entry that precedes e in the list.
//
//go:nosplit
func (e *waiterEntry) SetPrev(w *Waiter) {
	e.prev = w
}
