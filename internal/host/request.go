package host

import (
	"context"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/opencode-ai/chathost/internal/extension"
	"github.com/opencode-ai/chathost/internal/model"
	"github.com/opencode-ai/chathost/internal/part"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// Variable is one revived prompt variable with its resolved references.
type Variable struct {
	Name       string
	Value      string
	References []part.Reference
}

// ResolvedLocation anchors a request to a resolved spot in the workspace.
type ResolvedLocation struct {
	Kind      string
	Document  *Document
	Selection *part.Range
	CellIndex *int
}

// Request is the typed in-memory form of one invocation. Immutable once
// revived; live state (pause, tool changes) belongs to the in-flight entry.
type Request struct {
	RequestID string
	SessionID string
	AgentID   string
	Message   string

	Variables        []Variable
	ToolReferences   []Variable
	Location         *ResolvedLocation
	Model            model.Model
	Tools            []Tool
	EditedFileEvents []wire.EditedFileEvent
}

// InvocationContext is the per-invocation context handed to the handler
// alongside the request.
type InvocationContext struct {
	History     []Turn
	Diagnostics []Diagnostic
	InFlight    *InFlightRequest
}

// Turn is one revived prior request/response pair.
type Turn struct {
	Request  wire.RequestDraft
	Response []part.Part
	Result   wire.InvocationResult
}

// reviveRequest converts a transport draft into typed form. Variables are
// split into prompt variables and tool references; the location's document
// is resolved through the document service when one is configured; edited
// file events are dropped unless the extension holds the matching
// capability.
func reviveRequest(ctx context.Context, draft wire.RequestDraft, ext extension.Identity, docs DocumentResolver) (*Request, error) {
	req := &Request{
		RequestID: draft.RequestID,
		SessionID: draft.SessionID,
		AgentID:   draft.AgentID,
		Message:   draft.Message,
	}

	for _, v := range draft.Variables {
		revived := Variable{Name: v.Name, Value: v.Value}
		for _, ref := range v.References {
			revived.References = append(revived.References, part.Reference{
				URI:          ref.URI,
				Range:        decodeSelection(ref.Range),
				VariableName: v.Name,
			})
		}
		if v.IsTool {
			req.ToolReferences = append(req.ToolReferences, revived)
		} else {
			req.Variables = append(req.Variables, revived)
		}
	}

	if draft.Location != nil {
		loc := &ResolvedLocation{
			Kind:      draft.Location.Kind,
			Selection: decodeSelection(draft.Location.Selection),
			CellIndex: draft.Location.CellIndex,
		}
		if docs != nil && draft.Location.DocumentURI != "" {
			doc, err := docs.Document(ctx, draft.Location.DocumentURI)
			if err != nil {
				return nil, err
			}
			loc.Document = doc
		}
		req.Location = loc
	}

	if ext.Has(extension.CapEditedFileEvents) {
		req.EditedFileEvents = draft.EditedFileEvents
	}

	return req, nil
}

// variableReferences indexes a request's variables for stream fan-out.
func variableReferences(req *Request) map[string][]part.Reference {
	out := make(map[string][]part.Reference, len(req.Variables))
	for _, v := range req.Variables {
		out[v.Name] = v.References
	}
	return out
}

// filterTools narrows the extension's tool set to the user's selection.
// Selection keys are glob patterns; a nil selection keeps every tool, an
// empty one keeps none. Patterns that match no tool are ignored. Glob
// patterns apply in sorted order so conflicts resolve the same way every
// time, and an exact-name entry beats any glob that also matched the tool.
func filterTools(available []Tool, selected map[string]bool) []Tool {
	if selected == nil {
		return available
	}

	patterns := make([]string, 0, len(selected))
	for pattern := range selected {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	keep := make(map[string]bool)
	for _, pattern := range patterns {
		for _, t := range available {
			if ok, err := doublestar.Match(pattern, t.Name); err == nil && ok {
				keep[t.Name] = selected[pattern]
			}
		}
	}
	for _, t := range available {
		if enabled, ok := selected[t.Name]; ok {
			keep[t.Name] = enabled
		}
	}

	var out []Tool
	for _, t := range available {
		if keep[t.Name] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func decodeSelection(r *wire.RangeDTO) *part.Range {
	if r == nil {
		return nil
	}
	return &part.Range{
		StartLine:      r.StartLine,
		StartCharacter: r.StartCharacter,
		EndLine:        r.EndLine,
		EndCharacter:   r.EndCharacter,
	}
}
