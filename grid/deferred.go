package grid

import "sync"

// OpKind distinguishes a Merge from a Split deferred operation.
type OpKind int

const (
	OpMerge OpKind = iota
	OpSplit
)

// DeferredOp is a structural mutation computed during Pass 3 and drained in
// FIFO order by Pass 5 (single-consumer). Ported from the reference
// engine's DeferredOp enum.
type DeferredOp struct {
	Kind OpKind
	A, B uint32 // Merge: the two parents. Split: A is the dissolving agent, B unused.
}

// DeferredQueue is a single-producer, single-consumer FIFO. Pass 3 computes
// each interaction's ops into its own index-addressed slot while running in
// parallel, then enqueues them here sequentially, in interaction-index
// order, once its parallel region has finished; the single consumer
// (Pass 5) drains the whole queue at once between barriers. Enqueuing is
// never called from more than one goroutine at a time — doing so from
// Pass 3's worker goroutines directly would order ops by whichever
// goroutine won the mutex, not by interaction index, which would make
// Merge/Split outcomes depend on thread scheduling (spec.md property 7).
type DeferredQueue struct {
	mu  sync.Mutex
	ops []DeferredOp
}

// NewDeferredQueue returns an empty queue.
func NewDeferredQueue() *DeferredQueue {
	return &DeferredQueue{}
}

// EnqueueMerge appends a Merge(a, b) command.
func (q *DeferredQueue) EnqueueMerge(a, b uint32) {
	q.mu.Lock()
	q.ops = append(q.ops, DeferredOp{Kind: OpMerge, A: a, B: b})
	q.mu.Unlock()
}

// EnqueueSplit appends a Split(c) command.
func (q *DeferredQueue) EnqueueSplit(c uint32) {
	q.mu.Lock()
	q.ops = append(q.ops, DeferredOp{Kind: OpSplit, A: c})
	q.mu.Unlock()
}

// Drain returns all queued ops in FIFO order and empties the queue. Must
// only be called by the single Pass 5 consumer.
func (q *DeferredQueue) Drain() []DeferredOp {
	q.mu.Lock()
	ops := q.ops
	q.ops = nil
	q.mu.Unlock()
	return ops
}
