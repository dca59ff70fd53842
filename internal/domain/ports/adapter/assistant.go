package adapter

import "context"

// RunEventKind classifies one record of a provider run stream.
type RunEventKind string

const (
	RunThreadCreated    RunEventKind = "thread_created"
	RunCreated          RunEventKind = "run_created"
	RunTextDelta        RunEventKind = "text_delta"
	RunMessageCompleted RunEventKind = "message_completed"
	RunCompleted        RunEventKind = "run_completed"
	RunFailed           RunEventKind = "run_failed"
)

// Annotation is a file citation attached to answer text.
type Annotation struct {
	FileID string
	Quote  string
	// Text is the inline marker the provider placed in the answer.
	Text string
}

// RunEvent is one decoded record of a streamed run.
type RunEvent struct {
	Kind        RunEventKind
	ThreadID    string
	RunID       string
	Text        string // delta text or full message content
	Annotations []Annotation
	Reason      string // run_failed only
}

// RunStream iterates the events of one run. Callers must Close it.
type RunStream interface {
	Next() bool
	Event() RunEvent
	Err() error
	Close() error
}

// RunSpec describes one assistant run over a thread.
type RunSpec struct {
	ThreadID      string
	AssistantID   string
	DocumentSetID string
	// Instructions are appended to the assistant's own instructions for this run only.
	Instructions string
}

type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// Failed reports provider-side terminal failures.
func (s RunStatus) Failed() bool {
	switch s {
	case RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	}
	return false
}

// Run is the polled view of a provider run.
type Run struct {
	ID        string
	ThreadID  string
	Status    RunStatus
	LastError string
}

// ThreadMessage is a complete message read back from a thread.
type ThreadMessage struct {
	Role        string
	Content     string
	Annotations []Annotation
}

type FileMetadata struct {
	ID       string
	Filename string
}

// AssistantProvider is the port to the hosted assistants service.
type AssistantProvider interface {
	// CreateThread opens a conversation bound to the given retrieval document set.
	CreateThread(ctx context.Context, documentSetID string) (string, error)
	AppendUserTurn(ctx context.Context, threadID, text string) error
	StreamRun(ctx context.Context, spec RunSpec) (RunStream, error)
	CreateRun(ctx context.Context, spec RunSpec) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	// FetchLatestMessage returns the newest message of the thread.
	FetchLatestMessage(ctx context.Context, threadID string) (ThreadMessage, error)
	FetchFileMetadata(ctx context.Context, fileID string) (FileMetadata, error)
}
