// Package main is the entry point for fsplugin-ctl.
package main

import (
	"os"

	"github.com/srediag/fsplugin/cmd/fsplugin-ctl/app"
)

func main() {
	os.Exit(app.Run(os.Args, os.Stdout, os.Stderr))
}
