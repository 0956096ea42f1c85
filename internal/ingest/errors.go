package ingest

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a file was in when it failed.
type Stage string

// Pipeline stages a file moves through.
const (
	StagePending    Stage = "pending"
	StageDecoding   Stage = "decode"
	StageBuilding   Stage = "build"
	StageSubmitting Stage = "submit"
	StageCanceled   Stage = "canceled"
)

// DirectoryUnreadableError is fatal: the root could not be enumerated.
type DirectoryUnreadableError struct {
	Root string
	Err  error
}

func (e *DirectoryUnreadableError) Error() string {
	return fmt.Sprintf("directory unreadable %q: %v", e.Root, e.Err)
}

func (e *DirectoryUnreadableError) Unwrap() error { return e.Err }

// DecodeError reports that a file could not be read or decoded into a CrawlRecord.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode: " + errText(e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// BuildError reports that a CrawlRecord could not be turned into an IndexDocument.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return "build: " + errText(e.Err) }

func (e *BuildError) Unwrap() error { return e.Err }

// SubmitError reports that the index service did not accept a document.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string { return "submit: " + errText(e.Err) }

func (e *SubmitError) Unwrap() error { return e.Err }

// CanceledError marks files that were never processed because the run was canceled.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string { return "canceled: " + errText(e.Err) }

func (e *CanceledError) Unwrap() error { return e.Err }

// StageOf returns the stage encoded in err, or StagePending when err carries none.
func StageOf(err error) Stage {
	var (
		decodeErr *DecodeError
		buildErr  *BuildError
		submitErr *SubmitError
		cancelErr *CanceledError
	)
	switch {
	case errors.As(err, &decodeErr):
		return StageDecoding
	case errors.As(err, &buildErr):
		return StageBuilding
	case errors.As(err, &submitErr):
		return StageSubmitting
	case errors.As(err, &cancelErr):
		return StageCanceled
	default:
		return StagePending
	}
}

// WrapStage tags err with stage unless it already carries a stage.
func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	if StageOf(err) != StagePending {
		return err
	}
	switch stage {
	case StageDecoding:
		return &DecodeError{Err: err}
	case StageBuilding:
		return &BuildError{Err: err}
	case StageSubmitting:
		return &SubmitError{Err: err}
	case StageCanceled:
		return &CanceledError{Err: err}
	default:
		return err
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
