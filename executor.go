package filedb

import "sync"

// execResult is what a queued task reports back to its submitter.
type execResult struct {
	value interface{}
	err   error
}

type execTask struct {
	fn     func() (interface{}, error)
	result chan execResult
}

// executor is the single-writer FIFO task queue of spec.md §4.I. Every
// mutating façade method and the cursor's exec go through it; at most one
// task runs at a time, in submission order. Tasks submitted before the
// store is ready are held in a buffer instead of the queue, and drained
// into the queue in arrival order once setReady is called.
type executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ready  bool
	queue  []execTask
	buffer []execTask
}

func newExecutor() *executor {
	e := &executor{}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

func (e *executor) loop() {
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			e.cond.Wait()
		}
		t := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		value, err := t.fn()
		t.result <- execResult{value: value, err: err}
	}
}

// submit enqueues fn (or buffers it if not yet ready) and blocks until it
// has run, returning its result.
func (e *executor) submit(fn func() (interface{}, error)) (interface{}, error) {
	return e.enqueue(fn, false)
}

// submitForceQueue bypasses the not-ready buffer. Only loadDatabase uses
// this, so that a load can run even though nothing is ready yet.
func (e *executor) submitForceQueue(fn func() (interface{}, error)) (interface{}, error) {
	return e.enqueue(fn, true)
}

func (e *executor) enqueue(fn func() (interface{}, error), forceQueue bool) (interface{}, error) {
	t := execTask{fn: fn, result: make(chan execResult, 1)}
	e.mu.Lock()
	if e.ready || forceQueue {
		e.queue = append(e.queue, t)
		e.cond.Signal()
	} else {
		e.buffer = append(e.buffer, t)
	}
	e.mu.Unlock()

	res := <-t.result
	return res.value, res.err
}

// setReady drains the buffer into the queue, in arrival order, and marks
// the executor ready so future submissions go straight to the queue.
func (e *executor) setReady() {
	e.mu.Lock()
	e.ready = true
	if len(e.buffer) > 0 {
		e.queue = append(e.queue, e.buffer...)
		e.buffer = nil
	}
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *executor) isReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}
