package main

import (
	"os"

	"github.com/anoteng/regnskap/cmd/regnskapctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
