// Package optimistic - локальная машина состояний для оптимистичных правок
// одного поля: Idle -> Pending -> {Confirmed, RolledBack}.
package optimistic

import "sync"

// Phase - состояние поля
type Phase int

const (
	Idle Phase = iota
	Pending
	Confirmed
	RolledBack
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Field хранит подтвержденное значение и цепочку неподтвержденных правок.
// Видимое значение - подтвержденное, к которому по порядку применены все
// правки в пути. Поэтому повторное нажатие до ответа на первое работает
// от последнего локального значения, а не от снимка.
type Field[T any] struct {
	mu      sync.Mutex
	base    T
	baseSeq uint64
	seq     uint64
	pending []*Attempt[T]
	last    Phase
}

// Attempt - одна правка в пути. Завершается ровно один раз:
// Confirm, Commit или Rollback; повторные вызовы игнорируются.
type Attempt[T any] struct {
	field *Field[T]
	seq   uint64
	apply func(T) T
	done  bool
}

func New[T any](initial T) *Field[T] {
	return &Field[T]{base: initial}
}

// Value возвращает видимое значение
func (f *Field[T]) Value() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valueLocked()
}

func (f *Field[T]) valueLocked() T {
	v := f.base
	for _, a := range f.pending {
		if a.seq > f.baseSeq {
			v = a.apply(v)
		}
	}
	return v
}

// Phase возвращает Pending, пока есть правки в пути, иначе итог последней
func (f *Field[T]) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > 0 {
		return Pending
	}
	return f.last
}

// Busy сообщает, есть ли неподтвержденные правки
func (f *Field[T]) Busy() bool {
	return f.Phase() == Pending
}

// Begin применяет правку локально и возвращает ее для последующего завершения
func (f *Field[T]) Begin(apply func(T) T) *Attempt[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	a := &Attempt[T]{field: f, seq: f.seq, apply: apply}
	f.pending = append(f.pending, a)
	return a
}

// Reset заменяет подтвержденное значение снаружи (например, после
// перезагрузки). Правки, начатые раньше, больше не применяются.
func (f *Field[T]) Reset(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base = v
	f.baseSeq = f.seq
}

// Confirm принимает состояние сервера. Ответ на более раннюю правку, пришедший
// после более поздней, не перетирает ее.
func (a *Attempt[T]) Confirm(server T) T {
	f := a.field
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finish(a) && a.seq > f.baseSeq {
		f.base = server
		f.baseSeq = a.seq
		f.last = Confirmed
	}
	return f.valueLocked()
}

// Commit подтверждает правку, когда сервер не вернул состояние: правка
// переносится в подтвержденное значение
func (a *Attempt[T]) Commit() T {
	f := a.field
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finish(a) && a.seq > f.baseSeq {
		f.base = a.apply(f.base)
		f.last = Confirmed
	}
	return f.valueLocked()
}

// Rollback отменяет правку
func (a *Attempt[T]) Rollback() T {
	f := a.field
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finish(a) {
		f.last = RolledBack
	}
	return f.valueLocked()
}

func (f *Field[T]) finish(a *Attempt[T]) bool {
	if a.done {
		return false
	}
	a.done = true
	for i, p := range f.pending {
		if p == a {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return true
}
