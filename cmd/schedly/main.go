// Command schedly は予約スケジューリングAPIのエントリーポイント。
//
//	schedly [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/schedly/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "schedly: %v\n", err)
		os.Exit(1)
	}
}
