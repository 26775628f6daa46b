package main

import (
	"os"

	"github.com/zjregee/alterchat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
