package main

import (
	"os"

	"github.com/predictsh/predictd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
