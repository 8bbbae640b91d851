// Package agent runs a single instruction-following model stage, including
// the tool-use loop for stages that are granted web access.
package agent

// Spec is an immutable stage definition. Build it once and share it.
type Spec struct {
	ID           string
	Name         string
	Instructions string
	Model        string
	UsesTools    bool
}

// WithModel returns a copy of s using model. An empty model keeps s.Model.
func (s Spec) WithModel(model string) Spec {
	if model != "" {
		s.Model = model
	}
	return s
}

// WithInstructions returns a copy of s using instructions, if non-empty.
func (s Spec) WithInstructions(instructions string) Spec {
	if instructions != "" {
		s.Instructions = instructions
	}
	return s
}
