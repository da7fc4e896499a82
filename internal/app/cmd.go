package app

import (
	"fmt"
	"io"
)

// Command はschedlyのサブコマンドを表す。
type Command string

const (
	// CommandServe は予約APIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は通知メールの配送と保持期間切れ予約の削除を行うワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIサーバーの/healthを確認する。
	// distrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// commands は使い方に表示する順序を兼ねる。
var commands = []struct {
	cmd     Command
	summary string
}{
	{CommandServe, "予約APIサーバーを起動する (既定)"},
	{CommandWorker, "通知キューを処理し、CLEANUP_RETENTION_DAYS>0なら古い予約を削除する"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "ローカルのAPIサーバーに/healthを問い合わせる"},
	{CommandHelp, "この使い方を表示する"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空または未知のサブコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, c := range commands {
		if args[0] == string(c.cmd) {
			return c.cmd
		}
	}
	return CommandServe
}

// WriteUsage はschedlyの使い方をwに書き出す。
func WriteUsage(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Usage: schedly <command>\n\nCommands:"); err != nil {
		return err
	}
	for _, c := range commands {
		if _, err := fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.summary); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "\n設定は環境変数または.envから読み込む。")
	return err
}
