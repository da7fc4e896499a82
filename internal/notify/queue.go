package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskPrefix は通知タスクの型名の接頭辞。
const TaskPrefix = "notify:"

// TaskType は通知種別に対応するタスク型名を返す。
func TaskType(kind Kind) string {
	return TaskPrefix + string(kind)
}

// NewTask はMessageをasynqのタスクに変換する。
func NewTask(msg Message) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return asynq.NewTask(TaskType(msg.Kind), payload), nil
}

// ParseTask はタスクのペイロードをMessageに戻す。
func ParseTask(t *asynq.Task) (Message, error) {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if msg.Kind == "" {
		msg.Kind = Kind(strings.TrimPrefix(t.Type(), TaskPrefix))
	}
	return msg, nil
}

// RedisConnOpt は既存のRedisクライアントをasynqの接続オプションとして使う。
func RedisConnOpt(client redis.UniversalClient) asynq.RedisConnOpt {
	return &redisConnOptWrapper{client: client}
}

type redisConnOptWrapper struct {
	client redis.UniversalClient
}

// MakeRedisClient はasynq.RedisConnOptの実装。
func (r *redisConnOptWrapper) MakeRedisClient() interface{} {
	return r.client
}

// Enqueuer はタスクの投入口。*asynq.Clientが実装する。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueOptions はタスク投入時のオプション。
type QueueOptions struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// QueuePublisher はasynqのキューに通知を投入するPublisher。
type QueuePublisher struct {
	enqueuer Enqueuer
	opts     QueueOptions
}

// NewQueuePublisher はQueuePublisherを生成する。
func NewQueuePublisher(enqueuer Enqueuer, opts QueueOptions) *QueuePublisher {
	if opts.Queue == "" {
		opts.Queue = "notifications"
	}
	return &QueuePublisher{enqueuer: enqueuer, opts: opts}
}

// Publish は通知をタスクとして投入する。
func (p *QueuePublisher) Publish(ctx context.Context, msg Message) error {
	task, err := NewTask(msg)
	if err != nil {
		return err
	}

	options := []asynq.Option{
		asynq.Queue(p.opts.Queue),
		asynq.MaxRetry(p.opts.MaxRetry),
	}
	if p.opts.Timeout > 0 {
		options = append(options, asynq.Timeout(p.opts.Timeout))
	}

	info, err := p.enqueuer.EnqueueContext(ctx, task, options...)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	slog.Debug("通知タスクを投入しました",
		slog.String("task_id", info.ID),
		slog.String("type", task.Type()),
		slog.String("queue", info.Queue),
	)
	return nil
}

// InlinePublisher はキューを使わず、その場で配送するPublisher。
// REDIS_URL未設定の開発環境で使う。
type InlinePublisher struct {
	deliverer Deliverer
}

// NewInlinePublisher はInlinePublisherを生成する。
func NewInlinePublisher(deliverer Deliverer) *InlinePublisher {
	return &InlinePublisher{deliverer: deliverer}
}

// Publish は通知を直接配送する。
func (p *InlinePublisher) Publish(ctx context.Context, msg Message) error {
	return p.deliverer.Deliver(ctx, msg)
}

// compile-time interface check
var (
	_ Publisher = (*QueuePublisher)(nil)
	_ Publisher = (*InlinePublisher)(nil)
	_ Enqueuer  = (*asynq.Client)(nil)
)
