// Package part defines the typed response fragments an agent handler can
// report, and the codec that converts them to and from wire DTOs.
package part

import "context"

// Part is one unit of progressively-produced response content. The set of
// implementations is closed; every variant has exactly one encoder in the
// codec.
type Part interface {
	part()
}

// Range is a zero-based document range.
type Range struct {
	StartLine      int
	StartCharacter int
	EndLine        int
	EndCharacter   int
}

// Markdown is a markdown chunk.
type Markdown struct {
	Content string
}

// Vulnerability annotates markdown content with a known weakness.
type Vulnerability struct {
	Title       string
	Description string
}

// MarkdownVuln is markdown content carrying vulnerability annotations.
type MarkdownVuln struct {
	Content         string
	Vulnerabilities []Vulnerability
}

// CodeblockURI associates the next markdown code block with a document.
type CodeblockURI struct {
	URI    string
	IsEdit bool
}

// FileTreeNode is one node of a file tree.
type FileTreeNode struct {
	Label    string
	Children []FileTreeNode
}

// FileTree renders a tree of files rooted at BaseURI.
type FileTree struct {
	BaseURI string
	Nodes   []FileTreeNode
}

// AnchorResolver resolves an anchor's final target asynchronously. The
// context is cancelled when the owning session is released.
type AnchorResolver func(ctx context.Context) (*Anchor, error)

// Anchor is an inline reference to a location. When Resolve is set the anchor
// is sent eagerly and its resolved form follows in a correlated second
// message.
type Anchor struct {
	URI     string
	Range   *Range
	Title   string
	Resolve AnchorResolver
}

// CommandButton renders a clickable button that runs a command on the peer.
type CommandButton struct {
	Title     string
	Command   string
	Arguments []any
}

// TaskReporter receives secondary progress updates from a running task.
type TaskReporter func(update Progress)

// TaskFunc is the body of a long-running progress task. Its return value
// becomes the terminal content shown once the task settles.
type TaskFunc func(ctx context.Context, report TaskReporter) (string, error)

// Progress is a progress message, optionally long-running. When Task is set
// the placeholder is transmitted immediately and the terminal result follows
// once the task settles, both tagged with the same sub-handle.
type Progress struct {
	Content string
	Task    TaskFunc
}

// Warning renders a warning.
type Warning struct {
	Content string
}

// Reference reports a consulted reference. When VariableName is set and the
// reference carries no target of its own, the stream fans out the variable's
// already-resolved references instead.
type Reference struct {
	URI          string
	Range        *Range
	VariableName string
	IconPath     string
}

// CodeCitation attributes generated code to a licensed source.
type CodeCitation struct {
	URI     string
	License string
	Snippet string
}

// Edit is one text replacement.
type Edit struct {
	Range   Range
	NewText string
}

// TextEdit applies a group of edits to one document. Original, when present,
// holds the replaced text and is used only to compute line stats at encode
// time; it never reaches the wire.
type TextEdit struct {
	URI      string
	Edits    []Edit
	Done     bool
	Original string
}

// NotebookCellEditKind enumerates notebook cell operations.
type NotebookCellEditKind string

const (
	CellInsert  NotebookCellEditKind = "insert"
	CellReplace NotebookCellEditKind = "replace"
	CellDelete  NotebookCellEditKind = "delete"
)

// NotebookCellEdit is one cell-level notebook edit.
type NotebookCellEdit struct {
	Index   int
	Kind    NotebookCellEditKind
	Content string
}

// NotebookEdit applies a group of edits to one notebook.
type NotebookEdit struct {
	URI   string
	Edits []NotebookCellEdit
	Done  bool
}

// Confirmation asks the user to pick one of Buttons before continuing.
type Confirmation struct {
	Title   string
	Message string
	Data    any
	Buttons []string
}

// ToolPreparation announces that a tool invocation is being prepared.
type ToolPreparation struct {
	ToolName string
}

// Move asks the peer to move focus to a location.
type Move struct {
	URI   string
	Range *Range
}

// Extensions recommends extensions by id.
type Extensions struct {
	ExtensionIDs []string
}

// PullRequest references a pull request.
type PullRequest struct {
	URI         string
	Title       string
	Description string
	Author      string
	LinkTag     string
}

func (Markdown) part()        {}
func (MarkdownVuln) part()    {}
func (CodeblockURI) part()    {}
func (FileTree) part()        {}
func (Anchor) part()          {}
func (CommandButton) part()   {}
func (Progress) part()        {}
func (Warning) part()         {}
func (Reference) part()       {}
func (CodeCitation) part()    {}
func (TextEdit) part()        {}
func (NotebookEdit) part()    {}
func (Confirmation) part()    {}
func (ToolPreparation) part() {}
func (Move) part()            {}
func (Extensions) part()      {}
func (PullRequest) part()     {}
