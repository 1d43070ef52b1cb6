package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/internal/modules/knowledge/infrastructure/mq"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// TaskProcessor 单一任务类型的处理器。返回 error 表示本次处理失败，
// 任务记为 failed 后可在仪表盘重试
type TaskProcessor interface {
	Process(ctx context.Context, task *file.IngestTask) error
}

// TaskWorker 消费 Kafka 中的任务 ID，按 task_type 分发。
// 消息只携带 ID，payload 始终以数据库为准
type TaskWorker struct {
	consumer   mq.Consumer
	taskRepo   repository.IngestTaskRepository
	processors map[string]TaskProcessor
}

func NewTaskWorker(consumer mq.Consumer, taskRepo repository.IngestTaskRepository) *TaskWorker {
	return &TaskWorker{
		consumer:   consumer,
		taskRepo:   taskRepo,
		processors: make(map[string]TaskProcessor),
	}
}

func (w *TaskWorker) RegisterProcessor(taskType string, p TaskProcessor) {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" || p == nil {
		return
	}
	w.processors[taskType] = p
}

func (w *TaskWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.taskRepo == nil {
		return errors.New("task repo is nil")
	}
	if len(w.processors) == 0 {
		return errors.New("no task processors registered")
	}
	return w.consumer.Run(ctx, w)
}

func (w *TaskWorker) Handle(ctx context.Context, msg mq.Message) error {
	idStr := strings.TrimSpace(string(msg.Value))
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		zlog.Warn("task worker invalid task_id", zap.String("topic", msg.Topic))
		return nil
	}

	task, err := w.taskRepo.GetByID(ctx, id)
	if err != nil {
		zlog.Warn("task worker get task failed", zap.Int64("task_id", id), zap.Error(err))
		return err
	}
	if task == nil {
		return nil
	}
	if task.Status == file.TaskStatusSucceeded {
		return nil
	}

	proc, ok := w.processors[strings.TrimSpace(task.TaskType)]
	if !ok {
		zlog.Warn("task worker unknown task_type",
			zap.Int64("task_id", task.Id),
			zap.String("task_type", task.TaskType))
		_ = w.taskRepo.MarkFailed(ctx, task.Id, "unknown task_type: "+task.TaskType)
		return nil
	}

	now := time.Now()
	ok, err = w.taskRepo.TryMarkProcessing(ctx, task.Id, now)
	if err != nil {
		zlog.Warn("task worker mark processing failed", zap.Int64("task_id", task.Id), zap.Error(err))
		return err
	}
	if !ok {
		return nil
	}

	procErr := proc.Process(ctx, task)
	if procErr != nil {
		_ = w.taskRepo.MarkFailed(ctx, task.Id, scrubErrMsg(procErr.Error()))
		zlog.Warn("task worker task failed",
			zap.Int64("task_id", task.Id),
			zap.String("task_type", strings.TrimSpace(task.TaskType)),
			zap.String("org_id", strings.TrimSpace(task.OrgId)),
			zap.String("namespace", strings.TrimSpace(task.Namespace)),
			zap.String("error", scrubErrMsg(procErr.Error())),
		)
		return nil
	}

	if err := w.taskRepo.MarkSucceeded(ctx, task.Id); err != nil {
		zlog.Warn("task worker mark succeeded failed", zap.Int64("task_id", task.Id), zap.Error(err))
		return err
	}
	return nil
}
