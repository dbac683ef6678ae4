package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionBusy       = errors.New("session is busy, try again later")
	ErrNoDocument        = errors.New("no PDF has been processed for this session")
	ErrIndexMissing      = errors.New("vector index not found for this session")
	ErrNoExtractableText = errors.New("no text could be extracted from the PDF")
	ErrProcessingFailed  = errors.New("pdf processing failed")
	ErrAnsweringFailed   = errors.New("question answering failed")
)

// failure ties a cause to one of the failure kinds above. Its message is the
// cause alone; errors.Is matches both the kind and the cause.
type failure struct {
	kind  error
	cause error
}

func (f *failure) Error() string   { return f.cause.Error() }
func (f *failure) Unwrap() []error { return []error{f.kind, f.cause} }

func processingFailed(cause error) error {
	return &failure{kind: ErrProcessingFailed, cause: cause}
}

func answeringFailed(cause error) error {
	return &failure{kind: ErrAnsweringFailed, cause: cause}
}
