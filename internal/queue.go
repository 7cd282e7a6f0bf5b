package internal

import "fmt"

// TaskQueue decouples protocol acknowledgement from persistence: handlers
// enqueue database writes and reply to the charge point without waiting
// for I/O. Failed tasks are logged and dropped.
type TaskQueue interface {
	Enqueue(name string, task func() error)
}

type writeTask struct {
	name string
	run  func() error
}

type WriteQueue struct {
	logger LogHandler
	tasks  chan writeTask
}

func NewWriteQueue(logger LogHandler) *WriteQueue {
	queue := &WriteQueue{
		logger: logger,
		tasks:  make(chan writeTask, 256),
	}
	go queue.worker()
	return queue
}

func (q *WriteQueue) worker() {
	for task := range q.tasks {
		if err := task.run(); err != nil {
			q.logger.Error(task.name, err)
		}
	}
}

func (q *WriteQueue) Enqueue(name string, task func() error) {
	select {
	case q.tasks <- writeTask{name: name, run: task}:
	default:
		q.logger.Error(name, fmt.Errorf("write queue is full, task dropped"))
	}
}

// SyncQueue runs tasks inline; used in tests and when ordering against the
// caller matters more than latency.
type SyncQueue struct {
	logger LogHandler
}

func NewSyncQueue(logger LogHandler) *SyncQueue {
	return &SyncQueue{logger: logger}
}

func (q *SyncQueue) Enqueue(name string, task func() error) {
	if err := task(); err != nil {
		q.logger.Error(name, err)
	}
}
