package call

import (
	"context"
	"sync"
)

// Result — отложенный результат асинхронной операции.
//
// Операции Endpoint, которые завершаются уведомлением (Listen, Unlisten),
// возвращают Result сразу, не блокируя вызывающего. Ошибка доступна после
// закрытия Done.
type Result struct {
	done chan struct{}

	mu  sync.Mutex
	set bool
	err error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// resolve фиксирует исход. Повторные вызовы игнорируются.
func (r *Result) resolve(err error) {
	r.mu.Lock()
	if r.set {
		r.mu.Unlock()
		return
	}
	r.set = true
	r.err = err
	r.mu.Unlock()

	close(r.done)
}

// Done закрывается после фиксации исхода операции.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Err возвращает исход операции. До закрытия Done всегда nil.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.set {
		return nil
	}
	return r.err
}

// Wait блокируется до фиксации исхода или отмены контекста.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
