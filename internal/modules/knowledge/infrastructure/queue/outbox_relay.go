package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/internal/modules/knowledge/infrastructure/mq"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// OutboxRelay 轮询 kb_ingest_task，把待发布任务送进 Kafka。
// 发布失败按指数退避重试，数据库是唯一事实来源
type OutboxRelay struct {
	repo         repository.IngestTaskRepository
	pub          mq.Publisher
	defaultTopic string
	batchSize    int
	pollInterval time.Duration
}

func NewOutboxRelay(repo repository.IngestTaskRepository, pub mq.Publisher, defaultTopic string, batchSize int, pollInterval time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 200
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &OutboxRelay{
		repo:         repo,
		pub:          pub,
		defaultTopic: strings.TrimSpace(defaultTopic),
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) error {
	if r.repo == nil {
		return errors.New("ingest task repo is nil")
	}
	if r.pub == nil {
		return errors.New("publisher is nil")
	}

	backoff := r.pollInterval
	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			time.Sleep(backoff)
			backoff = backoff * 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			continue
		}
		backoff = r.pollInterval

		if n == 0 {
			time.Sleep(r.pollInterval)
		}
	}
}

func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	now := time.Now()
	tasks, err := r.repo.ClaimForPublish(ctx, now, r.batchSize)
	if err != nil {
		zlog.Warn("outbox relay claim failed", zap.Error(err))
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	published := 0
	for i := range tasks {
		task := tasks[i]
		topic := r.defaultTopic
		if topic == "" {
			topic = strings.TrimSpace(task.KafkaTopic)
		}
		if topic == "" {
			_ = r.repo.MarkPublishFailed(ctx, task.Id, now.Add(5*time.Minute), "kafka topic is empty")
			continue
		}

		key := []byte(task.DedupKey)
		if len(key) == 0 {
			key = []byte(strconv.FormatInt(task.Id, 10))
		}

		res, pubErr := r.pub.Publish(ctx, mq.Message{
			Topic: topic,
			Key:   key,
			Value: []byte(strconv.FormatInt(task.Id, 10)),
			Headers: map[string]string{
				"task_type": task.TaskType,
				"org_id":    task.OrgId,
				"namespace": task.Namespace,
				"dedup_key": task.DedupKey,
			},
		})
		if pubErr != nil {
			next := computeNextRetry(now, task.RetryCount)
			_ = r.repo.MarkPublishFailed(ctx, task.Id, next, pubErr.Error())
			continue
		}

		if err := r.repo.MarkPublished(ctx, task.Id, topic, int(res.Partition), res.Offset, time.Now()); err != nil {
			zlog.Warn("outbox relay mark published failed", zap.Int64("id", task.Id), zap.Error(err))
			continue
		}
		published++
	}

	return published, nil
}

func computeNextRetry(now time.Time, retryCount int) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}
	d := 500 * time.Millisecond
	for i := 0; i < retryCount && d < 5*time.Minute; i++ {
		d = d * 2
	}
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return now.Add(d)
}

func scrubErrMsg(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "api_key") || strings.Contains(low, "apikey") || strings.Contains(low, "secret") || strings.Contains(s, "sk-") {
		return "redacted"
	}
	if len(s) > 255 {
		return s[:255]
	}
	return s
}
