// Licensed under the MIT License. See LICENSE file in the project root for details.

package freelist

import "sync/atomic"

// list is a lock-free stack of arena nodes. The head packs a modification
// tag in the upper 32 bits and a handle in the lower 32; every successful
// update bumps the tag, so a head that was popped and pushed back between a
// load and a CAS no longer compares equal.
type list struct {
	head atomic.Uint64
}

func pack(tag uint32, h handle) uint64 {
	return uint64(tag)<<32 | uint64(h)
}

func unpack(v uint64) (tag uint32, h handle) {
	return uint32(v >> 32), handle(v)
}

// push prepends the chain head..tail, whose nodes are linked through next,
// onto l.
func (l *list) push(head, tail handle, setNext func(handle, handle)) {
	for {
		old := l.head.Load()
		tag, top := unpack(old)
		setNext(tail, top)
		if l.head.CompareAndSwap(old, pack(tag+1, head)) {
			return
		}
	}
}

// pop removes the top handle, reading its successor through next. It
// returns the nil handle when the list is empty.
func (l *list) pop(next func(handle) handle) handle {
	for {
		old := l.head.Load()
		tag, top := unpack(old)
		if top == 0 {
			return 0
		}
		if l.head.CompareAndSwap(old, pack(tag+1, next(top))) {
			return top
		}
	}
}

// takeAll detaches the whole list and returns its first handle.
func (l *list) takeAll() handle {
	for {
		old := l.head.Load()
		tag, top := unpack(old)
		if top == 0 {
			return 0
		}
		if l.head.CompareAndSwap(old, pack(tag+1, 0)) {
			return top
		}
	}
}

// empty reports whether the list currently has no nodes.
func (l *list) empty() bool {
	_, top := unpack(l.head.Load())
	return top == 0
}
