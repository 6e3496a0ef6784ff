package main

import (
	"os"

	"github.com/zephyra-labs/zephyra-cli/internal/app"
)

func main() {
	runner := app.NewRunner()
	os.Exit(runner.Run(os.Args[1:]))
}
