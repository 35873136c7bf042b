// Package wire defines the transport-safe DTO shapes exchanged with the peer
// process. Everything in this package is JSON-serializable and carries no live
// handles or closures.
package wire

import "encoding/json"

// PartDTO is one encoded response fragment.
type PartDTO interface {
	DTOType() string
}

// DTO type tags. Each fragment kind encodes to exactly one of these.
const (
	TypeMarkdown        = "markdownContent"
	TypeMarkdownVuln    = "markdownVuln"
	TypeCodeblockURI    = "codeblockUri"
	TypeFileTree        = "treeData"
	TypeAnchor          = "inlineReference"
	TypeCommandButton   = "command"
	TypeProgressMessage = "progressMessage"
	TypeProgressTask    = "progressTask"
	TypeProgressTaskEnd = "progressTaskResult"
	TypeWarning         = "warning"
	TypeReference       = "reference"
	TypeCodeCitation    = "codeCitation"
	TypeTextEdit        = "textEditGroup"
	TypeNotebookEdit    = "notebookEditGroup"
	TypeConfirmation    = "confirmation"
	TypeToolPreparation = "prepareToolInvocation"
	TypeMove            = "move"
	TypeExtensions      = "extensions"
	TypePullRequest     = "pullRequest"
)

// RangeDTO is a zero-based document range.
type RangeDTO struct {
	StartLine      int `json:"startLineNumber"`
	StartCharacter int `json:"startColumn"`
	EndLine        int `json:"endLineNumber"`
	EndCharacter   int `json:"endColumn"`
}

// MarkdownDTO carries a markdown chunk.
type MarkdownDTO struct {
	Type  string `json:"type"` // always "markdownContent"
	Value string `json:"value"`
}

func (d *MarkdownDTO) DTOType() string { return TypeMarkdown }

// VulnerabilityDTO describes one vulnerability attached to a markdown chunk.
type VulnerabilityDTO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// MarkdownVulnDTO carries markdown annotated with vulnerability info.
type MarkdownVulnDTO struct {
	Type            string             `json:"type"` // always "markdownVuln"
	Value           string             `json:"value"`
	Vulnerabilities []VulnerabilityDTO `json:"vulnerabilities"`
}

func (d *MarkdownVulnDTO) DTOType() string { return TypeMarkdownVuln }

// CodeblockURIDTO associates the next code block with a document.
type CodeblockURIDTO struct {
	Type   string `json:"type"` // always "codeblockUri"
	URI    string `json:"uri"`
	IsEdit bool   `json:"isEdit,omitempty"`
}

func (d *CodeblockURIDTO) DTOType() string { return TypeCodeblockURI }

// FileTreeNodeDTO is one node of a rendered file tree.
type FileTreeNodeDTO struct {
	Label    string            `json:"label"`
	Children []FileTreeNodeDTO `json:"children,omitempty"`
}

// FileTreeDTO carries a file tree rooted at BaseURI.
type FileTreeDTO struct {
	Type    string            `json:"type"` // always "treeData"
	BaseURI string            `json:"baseUri"`
	Nodes   []FileTreeNodeDTO `json:"nodes"`
}

func (d *FileTreeDTO) DTOType() string { return TypeFileTree }

// AnchorDTO is an inline reference to a location. ResolveID is set only when
// the anchor resolves asynchronously; the resolved value arrives later in a
// HandleAnchorResolve call correlated by the same id.
type AnchorDTO struct {
	Type      string    `json:"type"` // always "inlineReference"
	URI       string    `json:"uri"`
	Range     *RangeDTO `json:"range,omitempty"`
	Title     string    `json:"title,omitempty"`
	ResolveID string    `json:"resolveId,omitempty"`
}

func (d *AnchorDTO) DTOType() string { return TypeAnchor }

// CommandButtonDTO is a clickable command button.
type CommandButtonDTO struct {
	Type      string `json:"type"` // always "command"
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

func (d *CommandButtonDTO) DTOType() string { return TypeCommandButton }

// ProgressMessageDTO is a transient progress message.
type ProgressMessageDTO struct {
	Type    string `json:"type"` // always "progressMessage"
	Content string `json:"content"`
}

func (d *ProgressMessageDTO) DTOType() string { return TypeProgressMessage }

// ProgressTaskDTO is the placeholder for a long-running task. It is always
// transmitted tagged with a sub-handle; the terminal ProgressTaskResultDTO
// carries the same sub-handle.
type ProgressTaskDTO struct {
	Type    string `json:"type"` // always "progressTask"
	Content string `json:"content"`
}

func (d *ProgressTaskDTO) DTOType() string { return TypeProgressTask }

// ProgressTaskResultDTO terminates a long-running task.
type ProgressTaskResultDTO struct {
	Type    string `json:"type"` // always "progressTaskResult"
	Content string `json:"content"`
}

func (d *ProgressTaskResultDTO) DTOType() string { return TypeProgressTaskEnd }

// WarningDTO is a rendered warning.
type WarningDTO struct {
	Type    string `json:"type"` // always "warning"
	Content string `json:"content"`
}

func (d *WarningDTO) DTOType() string { return TypeWarning }

// ReferenceDTO is a used-reference entry. VariableName is set when the
// reference originates from a prompt variable.
type ReferenceDTO struct {
	Type         string    `json:"type"` // always "reference"
	URI          string    `json:"uri,omitempty"`
	Range        *RangeDTO `json:"range,omitempty"`
	VariableName string    `json:"variableName,omitempty"`
	IconPath     string    `json:"iconPath,omitempty"`
}

func (d *ReferenceDTO) DTOType() string { return TypeReference }

// CodeCitationDTO attributes generated code to a licensed source.
type CodeCitationDTO struct {
	Type    string `json:"type"` // always "codeCitation"
	URI     string `json:"uri"`
	License string `json:"license"`
	Snippet string `json:"snippet"`
}

func (d *CodeCitationDTO) DTOType() string { return TypeCodeCitation }

// TextEditDTO is one edit within a text edit group.
type TextEditDTO struct {
	Range RangeDTO `json:"range"`
	Text  string   `json:"text"`
}

// TextEditGroupDTO applies a group of edits to one document. Additions and
// Deletions are line counts computed at encode time.
type TextEditGroupDTO struct {
	Type      string        `json:"type"` // always "textEditGroup"
	URI       string        `json:"uri"`
	Edits     []TextEditDTO `json:"edits"`
	Done      bool          `json:"done,omitempty"`
	Additions int           `json:"additions,omitempty"`
	Deletions int           `json:"deletions,omitempty"`
}

func (d *TextEditGroupDTO) DTOType() string { return TypeTextEdit }

// NotebookCellEditDTO is one cell-level notebook edit.
type NotebookCellEditDTO struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"` // "insert" | "replace" | "delete"
	Content string `json:"content,omitempty"`
}

// NotebookEditGroupDTO applies a group of edits to one notebook.
type NotebookEditGroupDTO struct {
	Type  string                `json:"type"` // always "notebookEditGroup"
	URI   string                `json:"uri"`
	Edits []NotebookCellEditDTO `json:"edits"`
	Done  bool                  `json:"done,omitempty"`
}

func (d *NotebookEditGroupDTO) DTOType() string { return TypeNotebookEdit }

// ConfirmationDTO asks the user to pick one of Buttons.
type ConfirmationDTO struct {
	Type    string          `json:"type"` // always "confirmation"
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Buttons []string        `json:"buttons"`
}

func (d *ConfirmationDTO) DTOType() string { return TypeConfirmation }

// ToolPreparationDTO announces that a tool invocation is being prepared.
type ToolPreparationDTO struct {
	Type     string `json:"type"` // always "prepareToolInvocation"
	ToolName string `json:"toolName"`
}

func (d *ToolPreparationDTO) DTOType() string { return TypeToolPreparation }

// MoveDTO asks the peer to move focus to a location.
type MoveDTO struct {
	Type  string    `json:"type"` // always "move"
	URI   string    `json:"uri"`
	Range *RangeDTO `json:"range,omitempty"`
}

func (d *MoveDTO) DTOType() string { return TypeMove }

// ExtensionsDTO recommends extensions by id.
type ExtensionsDTO struct {
	Type         string   `json:"type"` // always "extensions"
	ExtensionIDs []string `json:"extensions"`
}

func (d *ExtensionsDTO) DTOType() string { return TypeExtensions }

// PullRequestDTO references a pull request.
type PullRequestDTO struct {
	Type        string `json:"type"` // always "pullRequest"
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	LinkTag     string `json:"linkTag,omitempty"`
}

func (d *PullRequestDTO) DTOType() string { return TypePullRequest }

// OutboundPart is one queued element of a progress batch. SubHandle is set for
// task-bearing fragments so follow-up messages can be correlated.
type OutboundPart struct {
	Part      PartDTO `json:"part"`
	SubHandle *int    `json:"subHandle,omitempty"`
}

// rawPartDTO is the envelope used to sniff the type tag during decode.
type rawPartDTO struct {
	Type string `json:"type"`
}

// UnmarshalPartDTO decodes a JSON part DTO into the matching concrete type.
// Unknown type tags (including legacy command-followup shapes) return nil
// with no error so callers can filter them out of history replay.
func UnmarshalPartDTO(data []byte) (PartDTO, error) {
	var raw rawPartDTO
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var dto PartDTO
	switch raw.Type {
	case TypeMarkdown:
		dto = &MarkdownDTO{}
	case TypeMarkdownVuln:
		dto = &MarkdownVulnDTO{}
	case TypeCodeblockURI:
		dto = &CodeblockURIDTO{}
	case TypeFileTree:
		dto = &FileTreeDTO{}
	case TypeAnchor:
		dto = &AnchorDTO{}
	case TypeCommandButton:
		dto = &CommandButtonDTO{}
	case TypeProgressMessage:
		dto = &ProgressMessageDTO{}
	case TypeProgressTask:
		dto = &ProgressTaskDTO{}
	case TypeProgressTaskEnd:
		dto = &ProgressTaskResultDTO{}
	case TypeWarning:
		dto = &WarningDTO{}
	case TypeReference:
		dto = &ReferenceDTO{}
	case TypeCodeCitation:
		dto = &CodeCitationDTO{}
	case TypeTextEdit:
		dto = &TextEditGroupDTO{}
	case TypeNotebookEdit:
		dto = &NotebookEditGroupDTO{}
	case TypeConfirmation:
		dto = &ConfirmationDTO{}
	case TypeToolPreparation:
		dto = &ToolPreparationDTO{}
	case TypeMove:
		dto = &MoveDTO{}
	case TypeExtensions:
		dto = &ExtensionsDTO{}
	case TypePullRequest:
		dto = &PullRequestDTO{}
	default:
		// Legacy or unknown shapes are dropped, never revived.
		return nil, nil
	}

	if err := json.Unmarshal(data, dto); err != nil {
		return nil, err
	}
	return dto, nil
}
