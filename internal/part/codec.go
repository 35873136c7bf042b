package part

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/chathost/pkg/wire"
)

// CommandConverter rewrites command-button arguments into transport-safe
// values. The default converter passes arguments through unchanged.
type CommandConverter func(args []any) []any

// Codec converts typed fragments to wire DTOs and revives stored DTOs into
// typed history parts. Encoding is pure: the same fragment always yields a
// structurally equal DTO.
type Codec struct {
	convertArgs CommandConverter
}

// NewCodec creates a codec. converter may be nil.
func NewCodec(converter CommandConverter) *Codec {
	if converter == nil {
		converter = func(args []any) []any { return args }
	}
	return &Codec{convertArgs: converter}
}

// Encode converts one fragment into its wire DTO. Fragments missing required
// fields fail encoding; nothing is silently dropped here.
func (c *Codec) Encode(p Part) (wire.PartDTO, error) {
	switch v := p.(type) {
	case Markdown:
		return &wire.MarkdownDTO{Type: wire.TypeMarkdown, Value: v.Content}, nil

	case MarkdownVuln:
		vulns := make([]wire.VulnerabilityDTO, len(v.Vulnerabilities))
		for i, vuln := range v.Vulnerabilities {
			vulns[i] = wire.VulnerabilityDTO{Title: vuln.Title, Description: vuln.Description}
		}
		return &wire.MarkdownVulnDTO{Type: wire.TypeMarkdownVuln, Value: v.Content, Vulnerabilities: vulns}, nil

	case CodeblockURI:
		if v.URI == "" {
			return nil, fmt.Errorf("codeblock uri fragment requires a uri")
		}
		return &wire.CodeblockURIDTO{Type: wire.TypeCodeblockURI, URI: v.URI, IsEdit: v.IsEdit}, nil

	case FileTree:
		if v.BaseURI == "" {
			return nil, fmt.Errorf("file tree fragment requires a base uri")
		}
		return &wire.FileTreeDTO{Type: wire.TypeFileTree, BaseURI: v.BaseURI, Nodes: encodeTreeNodes(v.Nodes)}, nil

	case Anchor:
		if v.URI == "" {
			return nil, fmt.Errorf("anchor fragment requires a uri")
		}
		return &wire.AnchorDTO{
			Type:  wire.TypeAnchor,
			URI:   v.URI,
			Range: encodeRange(v.Range),
			Title: v.Title,
		}, nil

	case CommandButton:
		if v.Command == "" {
			return nil, fmt.Errorf("command button fragment requires a command id")
		}
		return &wire.CommandButtonDTO{
			Type:      wire.TypeCommandButton,
			Title:     v.Title,
			Command:   v.Command,
			Arguments: c.convertArgs(v.Arguments),
		}, nil

	case Progress:
		if v.Task != nil {
			return &wire.ProgressTaskDTO{Type: wire.TypeProgressTask, Content: v.Content}, nil
		}
		return &wire.ProgressMessageDTO{Type: wire.TypeProgressMessage, Content: v.Content}, nil

	case Warning:
		return &wire.WarningDTO{Type: wire.TypeWarning, Content: v.Content}, nil

	case Reference:
		return &wire.ReferenceDTO{
			Type:         wire.TypeReference,
			URI:          v.URI,
			Range:        encodeRange(v.Range),
			VariableName: v.VariableName,
			IconPath:     v.IconPath,
		}, nil

	case CodeCitation:
		if v.URI == "" {
			return nil, fmt.Errorf("code citation fragment requires a uri")
		}
		return &wire.CodeCitationDTO{Type: wire.TypeCodeCitation, URI: v.URI, License: v.License, Snippet: v.Snippet}, nil

	case TextEdit:
		if v.URI == "" {
			return nil, fmt.Errorf("text edit fragment requires a target uri")
		}
		edits := make([]wire.TextEditDTO, len(v.Edits))
		var combined strings.Builder
		for i, e := range v.Edits {
			edits[i] = wire.TextEditDTO{Range: *encodeRange(&e.Range), Text: e.NewText}
			combined.WriteString(e.NewText)
		}
		additions, deletions := editStats(v.Original, combined.String())
		return &wire.TextEditGroupDTO{
			Type:      wire.TypeTextEdit,
			URI:       v.URI,
			Edits:     edits,
			Done:      v.Done,
			Additions: additions,
			Deletions: deletions,
		}, nil

	case NotebookEdit:
		if v.URI == "" {
			return nil, fmt.Errorf("notebook edit fragment requires a target uri")
		}
		edits := make([]wire.NotebookCellEditDTO, len(v.Edits))
		for i, e := range v.Edits {
			edits[i] = wire.NotebookCellEditDTO{Index: e.Index, Kind: string(e.Kind), Content: e.Content}
		}
		return &wire.NotebookEditGroupDTO{Type: wire.TypeNotebookEdit, URI: v.URI, Edits: edits, Done: v.Done}, nil

	case Confirmation:
		if v.Title == "" || len(v.Buttons) == 0 {
			return nil, fmt.Errorf("confirmation fragment requires a title and at least one button")
		}
		var data json.RawMessage
		if v.Data != nil {
			raw, err := json.Marshal(v.Data)
			if err != nil {
				return nil, fmt.Errorf("confirmation data is not serializable: %w", err)
			}
			data = raw
		}
		return &wire.ConfirmationDTO{
			Type:    wire.TypeConfirmation,
			Title:   v.Title,
			Message: v.Message,
			Data:    data,
			Buttons: append([]string(nil), v.Buttons...),
		}, nil

	case ToolPreparation:
		if v.ToolName == "" {
			return nil, fmt.Errorf("tool preparation fragment requires a tool name")
		}
		return &wire.ToolPreparationDTO{Type: wire.TypeToolPreparation, ToolName: v.ToolName}, nil

	case Move:
		if v.URI == "" {
			return nil, fmt.Errorf("move fragment requires a uri")
		}
		return &wire.MoveDTO{Type: wire.TypeMove, URI: v.URI, Range: encodeRange(v.Range)}, nil

	case Extensions:
		return &wire.ExtensionsDTO{Type: wire.TypeExtensions, ExtensionIDs: append([]string(nil), v.ExtensionIDs...)}, nil

	case PullRequest:
		if v.URI == "" {
			return nil, fmt.Errorf("pull request fragment requires a uri")
		}
		return &wire.PullRequestDTO{
			Type:        wire.TypePullRequest,
			URI:         v.URI,
			Title:       v.Title,
			Description: v.Description,
			Author:      v.Author,
			LinkTag:     v.LinkTag,
		}, nil
	}

	return nil, fmt.Errorf("unknown fragment type %T", p)
}

// DecodeHistoryParts revives stored response DTOs into typed fragments for
// history replay. Unknown and legacy shapes are filtered out, not errors.
// Revived anchors and tasks carry no resolver or task body.
func (c *Codec) DecodeHistoryParts(raw []json.RawMessage) ([]Part, error) {
	var parts []Part
	for _, data := range raw {
		dto, err := wire.UnmarshalPartDTO(data)
		if err != nil {
			return nil, fmt.Errorf("malformed history part: %w", err)
		}
		if dto == nil {
			continue
		}
		if p := dtoToPart(dto); p != nil {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

// dtoToPart is the decode half of the codec. Returns nil for DTO shapes that
// have no in-memory form worth replaying.
func dtoToPart(dto wire.PartDTO) Part {
	switch d := dto.(type) {
	case *wire.MarkdownDTO:
		return Markdown{Content: d.Value}
	case *wire.MarkdownVulnDTO:
		vulns := make([]Vulnerability, len(d.Vulnerabilities))
		for i, v := range d.Vulnerabilities {
			vulns[i] = Vulnerability{Title: v.Title, Description: v.Description}
		}
		return MarkdownVuln{Content: d.Value, Vulnerabilities: vulns}
	case *wire.CodeblockURIDTO:
		return CodeblockURI{URI: d.URI, IsEdit: d.IsEdit}
	case *wire.FileTreeDTO:
		return FileTree{BaseURI: d.BaseURI, Nodes: decodeTreeNodes(d.Nodes)}
	case *wire.AnchorDTO:
		return Anchor{URI: d.URI, Range: decodeRange(d.Range), Title: d.Title}
	case *wire.CommandButtonDTO:
		return CommandButton{Title: d.Title, Command: d.Command, Arguments: d.Arguments}
	case *wire.ProgressMessageDTO:
		return Progress{Content: d.Content}
	case *wire.ProgressTaskDTO:
		return Progress{Content: d.Content}
	case *wire.ProgressTaskResultDTO:
		return Progress{Content: d.Content}
	case *wire.WarningDTO:
		return Warning{Content: d.Content}
	case *wire.ReferenceDTO:
		return Reference{URI: d.URI, Range: decodeRange(d.Range), VariableName: d.VariableName, IconPath: d.IconPath}
	case *wire.CodeCitationDTO:
		return CodeCitation{URI: d.URI, License: d.License, Snippet: d.Snippet}
	case *wire.TextEditGroupDTO:
		edits := make([]Edit, len(d.Edits))
		for i, e := range d.Edits {
			edits[i] = Edit{Range: *decodeRange(&e.Range), NewText: e.Text}
		}
		return TextEdit{URI: d.URI, Edits: edits, Done: d.Done}
	case *wire.NotebookEditGroupDTO:
		edits := make([]NotebookCellEdit, len(d.Edits))
		for i, e := range d.Edits {
			edits[i] = NotebookCellEdit{Index: e.Index, Kind: NotebookCellEditKind(e.Kind), Content: e.Content}
		}
		return NotebookEdit{URI: d.URI, Edits: edits, Done: d.Done}
	case *wire.ConfirmationDTO:
		var data any
		if len(d.Data) > 0 {
			_ = json.Unmarshal(d.Data, &data)
		}
		return Confirmation{Title: d.Title, Message: d.Message, Data: data, Buttons: d.Buttons}
	case *wire.ToolPreparationDTO:
		return ToolPreparation{ToolName: d.ToolName}
	case *wire.MoveDTO:
		return Move{URI: d.URI, Range: decodeRange(d.Range)}
	case *wire.ExtensionsDTO:
		return Extensions{ExtensionIDs: d.ExtensionIDs}
	case *wire.PullRequestDTO:
		return PullRequest{URI: d.URI, Title: d.Title, Description: d.Description, Author: d.Author, LinkTag: d.LinkTag}
	}
	return nil
}

func encodeRange(r *Range) *wire.RangeDTO {
	if r == nil {
		return nil
	}
	return &wire.RangeDTO{
		StartLine:      r.StartLine,
		StartCharacter: r.StartCharacter,
		EndLine:        r.EndLine,
		EndCharacter:   r.EndCharacter,
	}
}

func decodeRange(r *wire.RangeDTO) *Range {
	if r == nil {
		return nil
	}
	return &Range{
		StartLine:      r.StartLine,
		StartCharacter: r.StartCharacter,
		EndLine:        r.EndLine,
		EndCharacter:   r.EndCharacter,
	}
}

func encodeTreeNodes(nodes []FileTreeNode) []wire.FileTreeNodeDTO {
	out := make([]wire.FileTreeNodeDTO, len(nodes))
	for i, n := range nodes {
		out[i] = wire.FileTreeNodeDTO{Label: n.Label, Children: encodeTreeNodes(n.Children)}
	}
	return out
}

func decodeTreeNodes(nodes []wire.FileTreeNodeDTO) []FileTreeNode {
	out := make([]FileTreeNode, len(nodes))
	for i, n := range nodes {
		out[i] = FileTreeNode{Label: n.Label, Children: decodeTreeNodes(n.Children)}
	}
	return out
}

// editStats counts added and deleted lines between the replaced text and the
// replacement. Both counts are zero when no original text is known.
func editStats(before, after string) (int, int) {
	if before == "" || before == after {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	additions, deletions := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}
	return additions, deletions
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
