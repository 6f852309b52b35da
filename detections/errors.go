package detections

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind int

const (
	// ConfigurationError: missing or unusable model path.
	ConfigurationError ErrorKind = iota
	// BackendError: model load or inference failure inside the runtime.
	BackendError
	// PipelineError: no source, no pixels or a GPU readback that did not complete.
	PipelineError
	// UsageError: a caller asked for something the data cannot satisfy.
	UsageError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigurationError:
		return "configuration"
	case BackendError:
		return "backend"
	case PipelineError:
		return "pipeline"
	case UsageError:
		return "usage"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

type ProcessingError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

func newError(kind ErrorKind, message string, cause error) error {
	return &ProcessingError{Kind: kind, Message: message, Cause: cause}
}

// ErrNoData means no pixels could be obtained for this frame. The frame is
// skipped and the previous results stay published.
var ErrNoData = &ProcessingError{Kind: PipelineError, Message: "no pixel data"}

// KindOf reports the kind of the first ProcessingError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
