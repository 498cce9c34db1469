// Package common provides the shared logging infrastructure for the datalake
// services. The logger routes error-level lines to stderr and everything else
// to stdout so that container orchestrators and log aggregators can treat the
// two streams differently.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter directs formatted log lines to stdout or stderr based on
// their level. It matches the literal "level=error" marker produced by the
// logrus text formatter, which keeps the check allocation-free.
type OutputSplitter struct{}

// Write implements io.Writer.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logger. The coordinator and worker both log
// through this instance; services may adjust the level and formatter at
// startup but should not replace the output writer.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
