package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"hunt-server/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Background - фоновый контекст: таймеры, файлы, сеть, генерация миров.
// Параллелизм не ограничен. Паники и ошибки задач перехватываются и
// логируются, наружу они не выходят никогда.
type Background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[*Timer]struct{}
}

func NewBackground(parent context.Context) *Background {
	ctx, cancel := context.WithCancel(parent)
	return &Background{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*Timer]struct{}),
	}
}

// Context - корневой контекст фоновых задач, отменяется в Shutdown
func (b *Background) Context() context.Context {
	return b.ctx
}

// Go запускает задачу в отдельной горутине
func (b *Background) Go(name string, fn func(ctx context.Context) error) {
	if b.ctx.Err() != nil {
		logger.For("background").WithField("task", name).Debug("Executor stopped, task skipped")
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(name, fn)
	}()
}

func (b *Background) run(name string, fn func(ctx context.Context) error) {
	log := logger.For("background").WithField("task", name)
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Background task panicked")
		}
	}()

	if err := fn(b.ctx); err != nil {
		if b.ctx.Err() != nil {
			log.WithError(err).Debug("Background task stopped by shutdown")
			return
		}
		log.WithError(err).Warn("Background task failed")
	}
}

// Timer - отложенная задача, которую можно отменить
type Timer struct {
	b    *Background
	t    *time.Timer
	name string
	once sync.Once
}

// AfterFunc выполняет fn через d на фоновом контексте
func (b *Background) AfterFunc(d time.Duration, name string, fn func(ctx context.Context) error) *Timer {
	timer := &Timer{b: b, name: name}

	// Под мьютексом: срабатывание (release) не может обогнать регистрацию
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timers[timer] = struct{}{}
	b.wg.Add(1)

	timer.t = time.AfterFunc(d, func() {
		if !timer.release() {
			return
		}
		defer b.wg.Done()
		if b.ctx.Err() != nil {
			return
		}
		b.run(name, fn)
	})
	return timer
}

// Stop отменяет таймер. Возвращает false, если он уже сработал или был остановлен.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}
	t.t.Stop()
	if !t.release() {
		return false
	}
	t.b.wg.Done()
	return true
}

// release снимает таймер с учета ровно один раз: либо срабатывание, либо Stop
func (t *Timer) release() bool {
	won := false
	t.once.Do(func() {
		won = true
		t.b.mu.Lock()
		delete(t.b.timers, t)
		t.b.mu.Unlock()
	})
	return won
}

// Shutdown отменяет корневой контекст и все ожидающие таймеры
func (b *Background) Shutdown() {
	b.cancel()

	b.mu.Lock()
	pending := make([]*Timer, 0, len(b.timers))
	for t := range b.timers {
		pending = append(pending, t)
	}
	b.mu.Unlock()

	for _, t := range pending {
		t.Stop()
	}
}

// Wait ждет завершения всех запущенных задач и таймеров
func (b *Background) Wait() {
	b.wg.Wait()
}
