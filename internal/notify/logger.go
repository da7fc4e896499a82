package notify

import (
	"fmt"
	"log/slog"
	"os"
)

// AsynqLogger はasynqの内部ログをslogに流す。
type AsynqLogger struct{}

func (AsynqLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (AsynqLogger) Info(args ...any) { slog.Info(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (AsynqLogger) Warn(args ...any) { slog.Warn(fmt.Sprint(args...), slog.String("component", "asynq")) }
func (AsynqLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...), slog.String("component", "asynq")) }

// Fatal はログを出力してプロセスを終了する。
func (AsynqLogger) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...), slog.String("component", "asynq"))
	os.Exit(1)
}
