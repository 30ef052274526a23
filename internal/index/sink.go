package index

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/blevesearch/bleve/v2/index/scorch"
)

// sinkCallbackName registers the gateway's callbacks with scorch.
const sinkCallbackName = "feedindex"

// DebugSink forwards formatted messages from the index library's
// verbose channel to the logger at debug level. It is a logging shim,
// not a text stream.
type DebugSink struct{}

// Write implements io.Writer.
func (DebugSink) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	slog.Debug("bleve", slog.String("msg", msg))
	return len(p), nil
}

var debugSink io.Writer = DebugSink{}

func init() {
	// Verbose channel: segment lifecycle events from the scorch
	// persister and merger are narrated into the debug log.
	scorch.RegistryEventCallbacks[sinkCallbackName] = func(e scorch.Event) bool {
		fmt.Fprintf(debugSink, "scorch event %s duration=%s", eventKindName(e.Kind), e.Duration)
		return true
	}

	// Background segment merges run on threads inside the index
	// library. A failed merge must not tear down the host process:
	// the error stops here, and the next write cycle re-attempts the
	// merge or the recovery path resets the index.
	scorch.RegistryAsyncErrorCallbacks[sinkCallbackName] = func(err error, path string) {
		slog.Warn("background merge failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// eventKindName names the scorch event kinds worth reading in a log.
func eventKindName(k scorch.EventKind) string {
	switch k {
	case scorch.EventKindCloseStart:
		return "close_start"
	case scorch.EventKindClose:
		return "close"
	case scorch.EventKindMergerProgress:
		return "merger_progress"
	case scorch.EventKindPersisterProgress:
		return "persister_progress"
	case scorch.EventKindBatchIntroductionStart:
		return "batch_introduction_start"
	case scorch.EventKindBatchIntroduction:
		return "batch_introduction"
	default:
		return fmt.Sprintf("kind_%d", int(k))
	}
}
