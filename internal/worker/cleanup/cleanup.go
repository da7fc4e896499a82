// Package cleanup は解決済みミーティングリクエストの自動削除ジョブを提供する。
// 保持日数が設定された場合に限り、却下・キャンセルから保持期間を超過したリクエストを
// ワーカーの定期タスクとして削除する。保留中と承認済みのリクエストは対象外。
// 保持日数が0以下の場合は無効で、何も削除しない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskType は定期削除タスクのasynqタスク種別。
const TaskType = "maintenance:cleanup_meeting_requests"

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は保持期間を超過した解決済みミーティングリクエストの削除ジョブ。
// 冪等な削除処理のため、asynqのリトライで重複実行されても問題ない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, retentionDays int) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run は却下・キャンセル済みでupdated_atがRetentionDays日前より古いリクエストを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	if !Enabled(j.RetentionDays) {
		j.logger.Warn("保持日数が設定されていないためクリーンアップをスキップしました",
			slog.Int("retention_days", j.RetentionDays),
		)
		return nil
	}

	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM meeting_requests
		WHERE status IN ('rejected', 'cancelled')
		  AND updated_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("ミーティングリクエストのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("ミーティングリクエストのクリーンアップに失敗しました: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	j.logger.Info("ミーティングリクエストのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// ProcessTask はasynq.Handlerとして定期タスクを処理する。
func (j *CleanupJob) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	return j.Run(ctx)
}

// Register はCleanupJobをasynqのServeMuxに登録する。
func (j *CleanupJob) Register(mux *asynq.ServeMux) {
	mux.Handle(TaskType, j)
}

// Enabled は保持日数の設定でクリーンアップが有効かどうかを返す。
func Enabled(retentionDays int) bool {
	return retentionDays > 0
}

// Registrar は定期タスクを登録する。*asynq.Schedulerが実装する。
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// Schedule はcronspecに従ってタスクを定期投入するよう登録する。
// 保持日数が0以下の場合は何も登録せず、空のエントリIDを返す。
func Schedule(scheduler Registrar, cronspec, queue string, retentionDays int) (string, error) {
	if !Enabled(retentionDays) {
		return "", nil
	}
	entryID, err := scheduler.Register(cronspec, asynq.NewTask(TaskType, nil), asynq.Queue(queue), asynq.MaxRetry(3))
	if err != nil {
		return "", fmt.Errorf("クリーンアップタスクの登録に失敗しました: %w", err)
	}
	return entryID, nil
}
