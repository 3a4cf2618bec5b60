package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"hunt-server/pkg/logger"

	"github.com/sirupsen/logrus"
)

// ErrQueueClosed возвращается, если очередь мира уже остановлена
var ErrQueueClosed = errors.New("world queue closed")

type worldCtxKey struct{}

// OnWorld сообщает, выполняется ли код внутри контекста мира.
// Вложенные вызовы Do из такого кода исполняются сразу, без очереди.
func OnWorld(ctx context.Context) bool {
	q, _ := ctx.Value(worldCtxKey{}).(*WorldQueue)
	return q != nil
}

// Состояния задачи: ждет в очереди, выполняется, брошена вызывающим
const (
	taskPending int32 = iota
	taskRunning
	taskAbandoned
)

type worldTask struct {
	ctx    context.Context
	fn     func(ctx context.Context) error
	name   string
	result chan error // nil для Submit
	state  *atomic.Int32
}

// WorldQueue - однопоточный контекст мутации мира.
// Все операции с живым движком выполняются одна за другой в порядке отправки
// в единственной горутине Run (как цикл инстанса уровня).
type WorldQueue struct {
	inbox chan worldTask
	done  chan struct{}
}

func NewWorldQueue(buffer int) *WorldQueue {
	if buffer <= 0 {
		buffer = 64
	}
	return &WorldQueue{
		inbox: make(chan worldTask, buffer),
		done:  make(chan struct{}),
	}
}

// Run запускает цикл очереди. Блокируется до отмены ctx.
func (q *WorldQueue) Run(ctx context.Context) {
	log := logger.For("world-queue")
	log.Info("World queue loop started")
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			log.Info("World queue loop stopped")
			return
		case task := <-q.inbox:
			err := q.execute(task)
			if task.result != nil {
				task.result <- err
				continue
			}
			if err != nil {
				log.WithFields(logrus.Fields{
					"task":  task.name,
					"error": err,
				}).Warn("World task failed")
			}
		}
	}
}

func (q *WorldQueue) execute(task worldTask) (err error) {
	// Вызывающий мог перестать ждать, пока задача стояла в очереди
	if task.state != nil && !task.state.CompareAndSwap(taskPending, taskRunning) {
		return context.Canceled
	}
	if task.ctx.Err() != nil {
		return task.ctx.Err()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.For("world-queue").WithFields(logrus.Fields{
				"task":  task.name,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("World task panicked")
			err = fmt.Errorf("world task %q panicked: %v", task.name, r)
		}
	}()
	return task.fn(context.WithValue(task.ctx, worldCtxKey{}, q))
}

// Do выполняет fn в контексте мира и ждет результата.
// Если ctx отменен до начала выполнения, fn не запускается вовсе. Если fn уже
// выполняется, Do дожидается ее завершения: после возврата из Do fn гарантированно
// не работает. Если вызывающий уже в контексте мира, fn выполняется сразу.
func (q *WorldQueue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if OnWorld(ctx) {
		return fn(ctx)
	}

	task := worldTask{ctx: ctx, fn: fn, name: "do", result: make(chan error, 1), state: new(atomic.Int32)}
	select {
	case q.inbox <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}

	select {
	case err := <-task.result:
		return err
	case <-ctx.Done():
		if task.state.CompareAndSwap(taskPending, taskAbandoned) {
			return ctx.Err()
		}
		// Задача уже выполняется с отмененным контекстом, ждем ее
		return <-task.result
	case <-q.done:
		return ErrQueueClosed
	}
}

// Submit ставит fn в очередь без ожидания. Ошибки только логируются.
func (q *WorldQueue) Submit(name string, fn func(ctx context.Context) error) {
	task := worldTask{ctx: context.Background(), fn: fn, name: name}
	select {
	case q.inbox <- task:
	case <-q.done:
		logger.For("world-queue").WithField("task", name).Warn("World queue closed, task dropped")
	}
}
