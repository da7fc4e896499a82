package notify

import (
	"time"

	"github.com/hibiken/asynq"
)

const (
	// initialRetryDelay は配送リトライの初回遅延。
	initialRetryDelay = 30 * time.Second
	// maxRetryDelay は配送リトライの最大遅延。
	maxRetryDelay = 30 * time.Minute
)

// RetryDelay はリトライ回数に基づく指数バックオフ遅延を返す。
// 初回30秒、2倍ずつ増加、最大30分。asynq.Config.RetryDelayFuncに渡す。
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
