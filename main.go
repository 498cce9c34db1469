// Command datalake is the entry point for the lakehouse control plane. The
// coordinator API and the job worker run from this one binary; see the cli
// package for the subcommands.
package main

import (
	"os"

	"github.com/datalake-platform/datalake/cli"
	"github.com/datalake-platform/datalake/common"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		common.Logger.WithField("error", err.Error()).Error("exiting")
		os.Exit(1)
	}
}
