// schoolsite は学校サイト管理画面の認証APIサーバー。
//
// 使い方:
//
//	schoolsite [serve|worker|migrate|seed|deactivate <email>|activate <email>|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/schoolsite/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "schoolsite: %v\n", err)
		os.Exit(1)
	}
}
