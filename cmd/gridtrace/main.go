package main

import (
	"os"

	"github.com/roach88/gridtrace/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		cmd.PrintErrln("Error:", err.Error())
		os.Exit(cli.GetExitCode(err))
	}
}
