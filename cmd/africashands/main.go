// Command africashands はAfrica's HandsプラットフォームのAPIサーバーとワーカーを起動する。
//
// 使い方:
//
//	africashands [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/africashands/platform/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "africashands: %v\n", err)
		os.Exit(1)
	}
}
