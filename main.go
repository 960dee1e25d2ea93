package main

import (
	"os"

	"github.com/akfldk1028/ARR-sub002/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
