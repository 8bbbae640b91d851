package cmd

import (
	"errors"

	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
)

// Process exit codes.
const (
	exitFailure  = 1
	exitConfig   = 2
	exitStartup  = 3
	exitCanceled = 130
)

func exitCode(err error) int {
	switch pipeline.Classify(err) {
	case pipeline.KindConfig:
		return exitConfig
	case pipeline.KindStartup:
		return exitStartup
	case pipeline.KindCanceled:
		return exitCanceled
	default:
		return exitFailure
	}
}

// userMessage never exposes raw API payloads. Errors that did not come from
// a run (flag parsing, file writes) are shown as is.
func userMessage(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) || pipeline.Classify(err) != pipeline.KindFatal {
		return pipeline.FormatFailure(err)
	}
	return err.Error()
}
