// Package queue implements the kernel's intrusive queue substrate: a single
// array-backed arena holding every linked list the kernel needs (the ready
// list, each semaphore's wait list, the sleep delta list), addressed by
// small integer ids rather than pointers.
//
// Entries [0, NPROC) are reserved one-to-one for process ids — a pid can
// only ever be linked into one list at a time, exactly as in the source
// kernel, where a process's single qnext/qprev pair is reused across
// whichever list currently holds it. Entries [NPROC, NPROC+2*NQENT) are
// sentinel pairs handed out by NewList, one head/tail pair per list.
package queue

import "nanokernel/kerrors"

const (
	keyMax = int32(1<<31 - 1) // head sentinel key
	keyMin = -(1 << 31)       // tail sentinel key
)

// ID identifies either a process entry (an ordinary pid) or a list (the
// index of that list's head sentinel).
type ID int32

// Empty is returned in place of a process id when a list has no more
// entries to give up.
const Empty ID = -1

type node struct {
	next, prev ID
	key        int32
	inUse      bool
}

// Pool is an arena of queue entries. The zero value is not usable; call
// NewPool.
type Pool struct {
	nproc   int32
	nodes   []node
	nextqid ID
}

// NewPool allocates a pool with nproc process entries and room for nqent
// list head/tail sentinel pairs.
func NewPool(nproc, nqent int32) *Pool {
	p := &Pool{
		nproc:   nproc,
		nodes:   make([]node, nproc+2*nqent),
		nextqid: ID(nproc),
	}
	for i := range p.nodes {
		p.nodes[i].next = Empty
		p.nodes[i].prev = Empty
	}
	return p
}

func (p *Pool) valid(id ID) bool {
	return id >= 0 && int(id) < len(p.nodes)
}

// NewList allocates a fresh empty list and returns the id of its head
// sentinel (pass this id, or head+1 for the tail, to every other function
// below as qid).
func (p *Pool) NewList() (ID, error) {
	if p.nextqid+2 > ID(len(p.nodes)) {
		return Empty, kerrors.ErrQueuePoolFull
	}
	head := p.nextqid
	tail := head + 1
	p.nextqid += 2

	p.nodes[head] = node{next: tail, prev: Empty, key: keyMax, inUse: true}
	p.nodes[tail] = node{next: Empty, prev: head, key: keyMin, inUse: true}
	return head, nil
}

func (p *Pool) tailOf(qid ID) ID { return qid + 1 }

// IsEmpty reports whether the list is empty.
func (p *Pool) IsEmpty(qid ID) bool {
	return p.nodes[qid].next == p.tailOf(qid)
}

// NonEmpty reports the negation of IsEmpty, matching the source kernel's
// naming at call sites.
func (p *Pool) NonEmpty(qid ID) bool { return !p.IsEmpty(qid) }

// FirstID returns the id at the head of the list without removing it, or
// Empty if the list is empty.
func (p *Pool) FirstID(qid ID) ID {
	n := p.nodes[qid].next
	if n == p.tailOf(qid) {
		return Empty
	}
	return n
}

// LastID returns the id at the tail of the list without removing it, or
// Empty if the list is empty.
func (p *Pool) LastID(qid ID) ID {
	tail := p.tailOf(qid)
	n := p.nodes[tail].prev
	if n == qid {
		return Empty
	}
	return n
}

func (p *Pool) linkBetween(id, prev, next ID) {
	p.nodes[id].prev = prev
	p.nodes[id].next = next
	p.nodes[prev].next = id
	p.nodes[next].prev = id
}

func (p *Pool) unlink(id ID) {
	n := p.nodes[id]
	p.nodes[n.prev].next = n.next
	p.nodes[n.next].prev = n.prev
	p.nodes[id].next = Empty
	p.nodes[id].prev = Empty
}

// Enqueue appends id to the tail of qid (plain FIFO insertion).
func (p *Pool) Enqueue(id, qid ID) error {
	if !p.valid(id) {
		return kerrors.ErrBadQid
	}
	tail := p.tailOf(qid)
	p.linkBetween(id, p.nodes[tail].prev, tail)
	p.nodes[id].key = 0
	return nil
}

// Dequeue removes and returns the id at the head of qid, or Empty if the
// list is empty.
func (p *Pool) Dequeue(qid ID) ID {
	id := p.FirstID(qid)
	if id == Empty {
		return Empty
	}
	p.unlink(id)
	return id
}

// Insert links id into qid ordered by descending key (highest key first),
// ties broken by arrival order — used for the priority-ordered ready list.
func (p *Pool) Insert(id, qid ID, key int32) error {
	if !p.valid(id) {
		return kerrors.ErrBadQid
	}
	curr := p.nodes[qid].next
	for p.nodes[curr].key >= key {
		curr = p.nodes[curr].next
	}
	p.linkBetween(id, p.nodes[curr].prev, curr)
	p.nodes[id].key = key
	return nil
}

// InsertDelta links id into qid ordered by ascending absolute delay, storing
// each node's key as the delta relative to its predecessor — used for the
// sleep queue, where delay is the caller's requested number of ticks and
// the clock only has to decrement the head's key once per tick.
func (p *Pool) InsertDelta(id, qid ID, delay int32) error {
	if !p.valid(id) {
		return kerrors.ErrBadQid
	}
	curr := p.nodes[qid].next
	tail := p.tailOf(qid)
	remaining := delay
	for curr != tail && p.nodes[curr].key <= remaining {
		remaining -= p.nodes[curr].key
		curr = p.nodes[curr].next
	}
	if curr != tail {
		p.nodes[curr].key -= remaining
	}
	p.linkBetween(id, p.nodes[curr].prev, curr)
	p.nodes[id].key = remaining
	return nil
}

// Remove unlinks id from whichever list it currently occupies, with no key
// adjustment. Used on absolute-key lists (the ready list) where a removed
// node's key has no bearing on its neighbors.
func (p *Pool) Remove(id ID) error {
	if !p.valid(id) {
		return kerrors.ErrBadQid
	}
	if p.nodes[id].prev == Empty {
		return kerrors.ErrQueueEmpty
	}
	p.unlink(id)
	return nil
}

// GetItem unlinks id from a delta-encoded list (the sleep queue),
// propagating its key onto its successor so the successor's remaining
// delay is unaffected by the early removal. Without this propagation
// (the source kernel's behavior) every process still waiting behind the
// removed one would wake late by exactly the removed node's delta.
func (p *Pool) GetItem(id, qid ID) error {
	if !p.valid(id) {
		return kerrors.ErrBadQid
	}
	n := p.nodes[id]
	if n.prev == Empty {
		return kerrors.ErrQueueEmpty
	}
	tail := p.tailOf(qid)
	if n.next != tail {
		p.nodes[n.next].key += n.key
	}
	p.unlink(id)
	return nil
}

// Key returns id's current key (priority, delta, or 0 for plain FIFO
// entries).
func (p *Pool) Key(id ID) int32 { return p.nodes[id].key }

// DecrementFirstKey subtracts one from the key of qid's head entry,
// simulating one tick elapsing against a delta-encoded list, and returns
// the entry's id and its key after decrementing. ok is false if qid is
// empty.
func (p *Pool) DecrementFirstKey(qid ID) (id ID, newKey int32, ok bool) {
	id = p.FirstID(qid)
	if id == Empty {
		return Empty, 0, false
	}
	p.nodes[id].key--
	return id, p.nodes[id].key, true
}

// Len returns the number of entries currently linked into qid.
func (p *Pool) Len(qid ID) int32 {
	var n int32
	tail := p.tailOf(qid)
	for curr := p.nodes[qid].next; curr != tail; curr = p.nodes[curr].next {
		n++
	}
	return n
}

// InQueue reports whether id is currently linked into some list (has valid
// prev/next pointers).
func (p *Pool) InQueue(id ID) bool {
	if !p.valid(id) {
		return false
	}
	return p.nodes[id].prev != Empty
}
