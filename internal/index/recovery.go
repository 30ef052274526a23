package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"

	ferrors "github.com/feedtools/feedindex/internal/errors"
)

// failureAction is the recovery decision for one failed operation.
// The operation itself is never requeued: partial progress beats an
// unbounded retry storm.
type failureAction int

const (
	// actionNone: no failure.
	actionNone failureAction = iota
	// actionReset: unrecoverable corruption, reset the whole index.
	actionReset
	// actionBackoff: the directory is held by another process; sleep
	// the retry delay and drop the operation.
	actionBackoff
	// actionRepairSegments: a partial segment write left segments.new
	// behind; promote it over the stable file and continue.
	actionRepairSegments
	// actionRepairDeleteable: same for deleteable.new.
	actionRepairDeleteable
	// actionDrop: any other I/O failure; log and drop the operation.
	actionDrop
)

// Transient artifact files the repair pass recognizes, with their
// stable counterparts.
const (
	segmentsArtifact   = "segments.new"
	segmentsStable     = "segments"
	deleteableArtifact = "deleteable.new"
	deleteableStable   = "deleteable"
)

// classifyFailure maps an operation failure to its recovery action.
// Typed errors are preferred; substring matching on the library's
// message is confined to this one function.
func classifyFailure(err error) failureAction {
	if err == nil {
		return actionNone
	}

	if ferrors.HasCode(err, ferrors.ErrCodeIndexLocked) {
		return actionBackoff
	}
	if errors.Is(err, fs.ErrPermission) {
		return actionBackoff
	}

	msg := err.Error()
	if strings.Contains(msg, segmentsArtifact) {
		return actionRepairSegments
	}
	if strings.Contains(msg, deleteableArtifact) {
		return actionRepairDeleteable
	}

	if errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, bleve.ErrorIndexMetaMissing) ||
		errors.Is(err, bleve.ErrorIndexMetaCorrupt) ||
		ferrors.HasCode(err, ferrors.ErrCodeCorruptIndex) {
		return actionReset
	}
	if strings.Contains(msg, "out of range") ||
		strings.Contains(msg, "no such file or directory") {
		return actionReset
	}

	// "docs out of order" and everything else: drop the operation.
	return actionDrop
}

// isCorruptionError reports whether err is the kind of corruption that
// classifyFailure would reset the index for.
func isCorruptionError(err error) bool {
	return classifyFailure(err) == actionReset
}

// repairArtifact promotes a transient artifact file over its stable
// counterpart in the index directory, replacing the existing one.
func repairArtifact(dir, artifact string) error {
	var stable string
	switch artifact {
	case segmentsArtifact:
		stable = segmentsStable
	case deleteableArtifact:
		stable = deleteableStable
	default:
		return fmt.Errorf("unknown artifact %q", artifact)
	}

	src := filepath.Join(dir, artifact)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("artifact %s not found: %w", artifact, err)
	}

	dst := filepath.Join(dir, stable)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to promote %s: %w", artifact, err)
	}
	return nil
}
