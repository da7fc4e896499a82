package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPublishTimeout は1件の発行に許す時間。
const DefaultPublishTimeout = 10 * time.Second

// Publisher は通知をワーカーへ渡す手段を表す。
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Recorder は通知の発行結果を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordNotificationPublished(kind string)
	RecordNotificationFailure(kind string, stage string)
}

// Dispatcher は通知を非同期に発行する。
// Dispatchは呼び出し元を待たせず、失敗はログとメトリクスにのみ残す。
type Dispatcher struct {
	publisher Publisher
	recorder  Recorder
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。timeoutが0以下の場合はDefaultPublishTimeoutを使う。
func NewDispatcher(publisher Publisher, recorder Recorder, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Dispatcher{
		publisher: publisher,
		recorder:  recorder,
		timeout:   timeout,
	}
}

// Dispatch は通知をバックグラウンドで発行する。
// 呼び出し元はエンティティの書き込みを確定させてから呼ぶこと。
// リクエストのキャンセルは発行に影響しない。
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.publish(ctx, msg); err != nil {
			slog.Error("通知の発行に失敗しました",
				slog.String("kind", string(msg.Kind)),
				slog.String("subject_id", msg.SubjectID),
				slog.String("error", err.Error()),
			)
			if d.recorder != nil {
				d.recorder.RecordNotificationFailure(string(msg.Kind), "publish")
			}
			return
		}

		if d.recorder != nil {
			d.recorder.RecordNotificationPublished(string(msg.Kind))
		}
		slog.Debug("通知を発行しました",
			slog.String("kind", string(msg.Kind)),
			slog.String("subject_id", msg.SubjectID),
		)
	}()
}

func (d *Dispatcher) publish(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return d.publisher.Publish(ctx, msg)
}

// Wait は発行中の通知が全て終わるまで待つ。シャットダウン時とテストで使う。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
