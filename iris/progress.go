package iris

import "sync"

// EncoderStatus is the encoder pipeline's state machine: inactive -> active
// -> (inactive | error | shutdown).
type EncoderStatus int32

const (
	EncoderInactive EncoderStatus = iota
	EncoderActive
	EncoderError
	EncoderShutdown
)

func (s EncoderStatus) String() string {
	switch s {
	case EncoderActive:
		return "active"
	case EncoderError:
		return "error"
	case EncoderShutdown:
		return "shutdown"
	default:
		return "inactive"
	}
}

// EncoderProgress is the polled snapshot exposed to an external progress
// renderer (a CLI spinner, a web socket, ...). Rendering itself is out of
// scope for this package; cmd/iris-encode is the collaborator that turns
// this data into a progress bar.
type EncoderProgress struct {
	Status      EncoderStatus
	Progress    float32 // completed / total
	DstFilePath string
	ErrorMsg    string
}

// progressState is the encoder-internal, mutex-guarded holder for the
// fields of EncoderProgress that aren't atomics (dstFilePath, errorMsg);
// the completed/total counters behind Progress are atomics on Encoder.
type progressState struct {
	mu          sync.Mutex
	dstFilePath string
	errorMsg    string
}

func (p *progressState) setError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorMsg = msg
}

func (p *progressState) snapshot() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dstFilePath, p.errorMsg
}
