package main

import (
	"os"

	"github.com/keyfold/keyfold-server/vaultservice"
)

func main() {
	if err := vaultservice.Run(); err != nil {
		os.Exit(1)
	}
}
