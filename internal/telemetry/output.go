package telemetry

import "io"
import "os"

// logOutput returns the writer that NewLogger's handler writes to.
var logOutput = func() io.Writer { return os.Stdout }
