package wire

import "encoding/json"

// VariableEntry is one prompt variable attached to a request. IsTool marks
// tool references, which are surfaced to the handler separately from plain
// prompt variables.
type VariableEntry struct {
	Name       string         `json:"name"`
	Value      string         `json:"value,omitempty"`
	IsTool     bool           `json:"isTool,omitempty"`
	References []ReferenceDTO `json:"references,omitempty"`
}

// LocationData pins a request to a spot in the workspace.
type LocationData struct {
	Kind        string    `json:"kind"` // "editor" | "notebook" | "terminal"
	DocumentURI string    `json:"documentUri,omitempty"`
	Selection   *RangeDTO `json:"selection,omitempty"`
	CellIndex   *int      `json:"cellIndex,omitempty"`
}

// EditedFileEvent records a user edit to a file the agent previously touched.
type EditedFileEvent struct {
	URI       string `json:"uri"`
	Kind      string `json:"kind"` // "keep" | "undo" | "userEdit"
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RequestDraft is the transport-neutral form of one invocation request, as
// supplied by the peer. It is revived into typed in-memory form before use.
type RequestDraft struct {
	RequestID           string            `json:"requestId"`
	SessionID           string            `json:"sessionId"`
	AgentID             string            `json:"agentId"`
	Message             string            `json:"message"`
	Variables           []VariableEntry   `json:"variables,omitempty"`
	Location            *LocationData     `json:"location,omitempty"`
	UserSelectedModelID string            `json:"userSelectedModelId,omitempty"`
	UserSelectedTools   map[string]bool   `json:"userSelectedTools,omitempty"`
	EditedFileEvents    []EditedFileEvent `json:"editedFileEvents,omitempty"`
}

// HistoryTurn is one stored request/response pair replayed to build handler
// context. Response parts are kept raw and revived through the codec.
type HistoryTurn struct {
	Request  RequestDraft      `json:"request"`
	Response []json.RawMessage `json:"response,omitempty"`
	Result   InvocationResult  `json:"result"`
}

// ErrorDetails describes a failed or partial response.
type ErrorDetails struct {
	Message              string   `json:"message"`
	ResponseIsIncomplete bool     `json:"responseIsIncomplete,omitempty"`
	IsQuotaExceeded      bool     `json:"isQuotaExceeded,omitempty"`
	ResponseIsRedacted   bool     `json:"responseIsRedacted,omitempty"`
	ConfirmationButtons  []string `json:"confirmationButtons,omitempty"`
}

// Timings carries per-request latency instrumentation in milliseconds.
type Timings struct {
	FirstProgressLatency int64 `json:"firstProgressLatency"`
	TotalElapsed         int64 `json:"totalElapsed"`
}

// InvocationResult is the envelope every invocation resolves with. Errors
// never cross the peer boundary raw; they are normalized into ErrorDetails.
type InvocationResult struct {
	ErrorDetails *ErrorDetails   `json:"errorDetails,omitempty"`
	Timings      *Timings        `json:"timings,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	NextQuestion string          `json:"nextQuestion,omitempty"`
	Details      string          `json:"details,omitempty"`
}

// AgentMetadata is the mutable public configuration of a registered agent,
// pushed to the peer in coalesced update calls.
type AgentMetadata struct {
	FullName               string `json:"fullName,omitempty"`
	Description            string `json:"description,omitempty"`
	Icon                   string `json:"icon,omitempty"`
	HelpText               string `json:"helpTextPrefix,omitempty"`
	WelcomeMessage         string `json:"welcomeMessage,omitempty"`
	Requester              string `json:"requester,omitempty"`
	SupportsIssueReporting bool   `json:"supportIssueReporting,omitempty"`
	HasFollowups           bool   `json:"hasFollowups,omitempty"`
}

// Followup is one suggested next prompt.
type Followup struct {
	Prompt string `json:"prompt"`
	Label  string `json:"label,omitempty"`
}

// CompletionItem is one slash or variable completion entry.
type CompletionItem struct {
	Label      string `json:"label"`
	InsertText string `json:"insertText,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// DetectedParticipant names the agent a detection provider selected.
type DetectedParticipant struct {
	Participant string `json:"participant"`
	Command     string `json:"command,omitempty"`
}

// RelatedFile is one file a related-files provider surfaced for a request.
type RelatedFile struct {
	URI         string `json:"uri"`
	Description string `json:"description,omitempty"`
}
