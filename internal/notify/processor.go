package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Deliverer は通知を実際に届ける。
type Deliverer interface {
	Deliver(ctx context.Context, msg Message) error
}

// Processor はキューから取り出した通知タスクを配送する。
// エラーを返すとasynqが再試行する。
type Processor struct {
	deliverer Deliverer
	recorder  Recorder
}

// NewProcessor はProcessorを生成する。
func NewProcessor(deliverer Deliverer, recorder Recorder) *Processor {
	return &Processor{deliverer: deliverer, recorder: recorder}
}

// ProcessTask はasynq.Handlerの実装。
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := ParseTask(t)
	if err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if err := p.deliverer.Deliver(ctx, msg); err != nil {
		slog.Warn("通知の配送に失敗しました",
			slog.String("kind", string(msg.Kind)),
			slog.String("subject_id", msg.SubjectID),
			slog.String("error", err.Error()),
		)
		if p.recorder != nil {
			p.recorder.RecordNotificationFailure(string(msg.Kind), "deliver")
		}
		return fmt.Errorf("通知の配送に失敗しました: %w", err)
	}

	slog.Info("通知を配送しました",
		slog.String("kind", string(msg.Kind)),
		slog.String("subject_id", msg.SubjectID),
	)
	return nil
}

// Register は全ての通知種別のタスク型にProcessorを登録する。
func (p *Processor) Register(mux *asynq.ServeMux) {
	for _, kind := range Kinds {
		mux.Handle(TaskType(kind), p)
	}
}

// compile-time interface check
var _ asynq.Handler = (*Processor)(nil)
