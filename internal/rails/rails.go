// Package rails validates submitted implementation plans against project
// policy phrases.
//
// Only the project's global rails are enforced: forbidden phrases must be
// absent and required phrases must be present, both as case-insensitive
// substring matches. Epic- and task-level rails are advisory: they are
// surfaced to the agent and the approver as guidance but never checked
// against the plan text, so an epic can record conventions without turning
// every one of them into a hard gate.
package rails

import (
	"fmt"
	"strings"
)

// Rails holds policy phrase lists at some scope.
type Rails struct {
	Forbidden   []string `json:"forbidden,omitempty"`
	Required    []string `json:"required,omitempty"`
	Conventions string   `json:"conventions,omitempty"`
}

// Violation describes a failed rails check. It carries the exact phrase so
// the agent can fix the plan rather than guess what "rails failed" meant.
type Violation struct {
	Kind   string // "forbidden" or "required"
	Phrase string
}

func (v *Violation) Error() string {
	if v.Kind == "forbidden" {
		return fmt.Sprintf("forbidden pattern: %q", v.Phrase)
	}
	return fmt.Sprintf("required pattern missing: %q", v.Phrase)
}

// CheckPlan validates plan text against the global rails. Checks run in
// order and the first failure wins: every non-empty forbidden phrase must be
// absent, then every non-empty required phrase must be present. A nil return
// means the plan passes.
func CheckPlan(planText string, global Rails) error {
	lower := strings.ToLower(planText)

	for _, phrase := range global.Forbidden {
		p := strings.TrimSpace(phrase)
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return &Violation{Kind: "forbidden", Phrase: p}
		}
	}

	for _, phrase := range global.Required {
		p := strings.TrimSpace(phrase)
		if p == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(p)) {
			return &Violation{Kind: "required", Phrase: p}
		}
	}

	return nil
}

// Advisory renders epic/task rails as guidance text for the agent. Returns
// "" when there is nothing to surface.
func Advisory(scope string, r Rails) string {
	var b strings.Builder
	if len(r.Forbidden) > 0 {
		fmt.Fprintf(&b, "%s avoid: %s\n", scope, strings.Join(r.Forbidden, "; "))
	}
	if len(r.Required) > 0 {
		fmt.Fprintf(&b, "%s expects: %s\n", scope, strings.Join(r.Required, "; "))
	}
	if strings.TrimSpace(r.Conventions) != "" {
		fmt.Fprintf(&b, "%s conventions: %s\n", scope, strings.TrimSpace(r.Conventions))
	}
	return b.String()
}
