// Command envprobe runs diagnostics against continuous-control locomotion
// environments.
package main

import (
	"os"

	"github.com/roach88/envprobe/internal/cli"
)

func main() {
	cli.LoadDotEnv(".env")
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
