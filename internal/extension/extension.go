// Package extension describes the identity and trust level of the extension
// behind a registered agent. Capabilities gate access to privileged result
// fields and request payloads.
package extension

import "fmt"

// Capability names a privileged surface an extension may be granted.
type Capability string

const (
	// CapPrivateChat allows populating privileged error detail fields
	// such as quota and redaction flags.
	CapPrivateChat Capability = "privateChat"
	// CapEditedFileEvents allows receiving the user's edited-file events
	// alongside a request.
	CapEditedFileEvents Capability = "editedFileEvents"
	// CapConfirmation allows emitting confirmation parts and attaching
	// confirmation buttons to error details.
	CapConfirmation Capability = "confirmation"
)

// Identity is the publishing extension behind one or more agents.
type Identity struct {
	ID           string
	Name         string
	Capabilities []Capability
}

// Has reports whether the capability was granted.
func (id Identity) Has(c Capability) bool {
	for _, granted := range id.Capabilities {
		if granted == c {
			return true
		}
	}
	return false
}

// Require returns a CapabilityError when the capability is missing.
func (id Identity) Require(c Capability) error {
	if id.Has(c) {
		return nil
	}
	return &CapabilityError{ExtensionID: id.ID, Capability: c}
}

// CapabilityError reports use of a surface the extension was not granted.
type CapabilityError struct {
	ExtensionID string
	Capability  Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("extension %q lacks the %q capability", e.ExtensionID, e.Capability)
}
