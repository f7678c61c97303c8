package main

import (
	"os"

	"github.com/mindlog-lab/mindlog/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
