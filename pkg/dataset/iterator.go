package dataset

import "sync"

type item struct {
	batch Batch
	err   error
}

// iterator hands batches from one producer goroutine to the consumer
// through a buffered channel.
type iterator struct {
	items chan item
	done  chan struct{}
	once  sync.Once
	err   error
}

func newIterator(prefetch int) *iterator {
	if prefetch < 0 {
		prefetch = 0
	}
	return &iterator{items: make(chan item, prefetch), done: make(chan struct{})}
}

func (it *iterator) produce(run func(emit func(Batch) bool) error) {
	defer close(it.items)
	emit := func(b Batch) bool {
		select {
		case it.items <- item{batch: b}:
			return true
		case <-it.done:
			return false
		}
	}
	if err := run(emit); err != nil {
		select {
		case it.items <- item{err: err}:
		case <-it.done:
		}
	}
}

func (it *iterator) Next() (Batch, bool) {
	if it.err != nil {
		return Batch{}, false
	}
	select {
	case <-it.done:
		return Batch{}, false
	default:
	}
	select {
	case <-it.done:
		return Batch{}, false
	case x, ok := <-it.items:
		if !ok {
			return Batch{}, false
		}
		if x.err != nil {
			it.err = x.err
			return Batch{}, false
		}
		return x.batch, true
	}
}

func (it *iterator) Err() error { return it.err }

// Close stops the producer. Batches already buffered are discarded.
func (it *iterator) Close() {
	it.once.Do(func() { close(it.done) })
}
