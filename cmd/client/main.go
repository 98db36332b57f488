package main

import (
	"log"
	"os"

	"coinfall/client/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}
