// Package main is the entrypoint of the hioload-netio command line.
package main

import "github.com/momentics/hioload-netio/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
