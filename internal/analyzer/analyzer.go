// Package analyzer defines the contract for submitting point-cloud files to the
// remote PCA service and the error kinds a submission can end in.
package analyzer

import (
	"context"
	"errors"

	"pca-viewer/internal/collector"
	"pca-viewer/internal/pca"
)

// FieldName is the multipart field every file is sent under.
const FieldName = "xyz_files"

// GenericFailureMessage is shown when the service gives no message of its own.
const GenericFailureMessage = "API request failed"

// NotConfiguredMessage tells the operator how to fix a placeholder endpoint.
const NotConfiguredMessage = "Set ANALYSIS_ENDPOINT to the URL of your PCA service (for example https://<service>.onrender.com/process_pca)."

// Client submits files for analysis.
type Client interface {
	Analyze(ctx context.Context, files []collector.SelectedFile) (pca.Result, error)
}

// ErrNotConfigured is returned, without any network call, while the endpoint
// is empty or still a placeholder.
var ErrNotConfigured = errors.New("analysis endpoint not configured")

// ErrNoFiles is returned when Analyze is called with nothing to send.
var ErrNoFiles = errors.New("no files to analyze")

// Kind classifies a failed submission.
type Kind string

const (
	KindTransport Kind = "transport"
	KindServer    Kind = "server"
	KindMalformed Kind = "malformed"
)

// Error describes a submission that reached (or tried to reach) the service.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text a user notification shows for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotConfigured) {
		return NotConfiguredMessage
	}
	if errors.Is(err, ErrNoFiles) {
		return "Select at least one " + collector.Suffix + " file."
	}
	var aerr *Error
	if errors.As(err, &aerr) && aerr.Message != "" {
		return "An error occurred: " + aerr.Message
	}
	if errors.Is(err, context.Canceled) {
		return "An error occurred: request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "An error occurred: request timed out"
	}
	return "An error occurred: " + GenericFailureMessage
}
