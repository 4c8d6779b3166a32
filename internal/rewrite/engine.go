package rewrite

import "mirror-proxy-go/internal/rebase"

// Engine applies the full ordered rule set to text fragments. An Engine is
// immutable after construction and safe for concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine for one domain mapping.
func NewEngine(m *rebase.Mapping) *Engine {
	return &Engine{rules: Rules(m)}
}

// Apply runs every rule over s in order and returns the rewritten fragment.
// Text that matches no rule is returned byte-identical.
func (e *Engine) Apply(s string) string {
	for _, r := range e.rules {
		s = r.Apply(s)
	}
	return s
}
