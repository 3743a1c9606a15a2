// Package main provides the download server binary: the HTTP front end plus
// the fetch, find and sitegen maintenance commands.
package main

import (
	"log"
	"os"

	"github.com/clean-dependency-project/dlserver/internal/cli"
)

func main() {
	app := cli.NewApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
