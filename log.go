package alarm

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger is the package-wide structured logger. Callers may replace it
// (e.g. to redirect through a rotating file writer) before constructing an
// Engine; the pipeline never creates its own logger instance.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "alarm",
})
