package main

import (
	"os"

	ligandxcmder "github.com/papercomputeco/ligandx/cmd/ligandx"
)

func main() {
	cmd := ligandxcmder.NewLigandxCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
