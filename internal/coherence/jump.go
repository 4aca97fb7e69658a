package coherence

import (
	"fmt"

	"github.com/hoferino/manda/pkg/schema"
)

// JumpResult is the outcome of a jump-safety check.
type JumpResult struct {
	Safe     bool                       `json:"safe"`
	Warnings []schema.NavigationWarning `json:"warnings,omitempty"`
}

// CheckJumpSafety evaluates moving the cursor from fromIndex to toIndex
// within the ordered artifact list. Backward and no-op moves are always
// safe. Forward jumps flag every skipped-over, not-yet-complete artifact
// as missing content; the jump is safe iff nothing reaches warning or
// error severity.
func CheckJumpSafety(fromIndex, toIndex int, order []string, view StatusView) JumpResult {
	if toIndex <= fromIndex {
		return JumpResult{Safe: true}
	}

	var warnings []schema.NavigationWarning
	for i := fromIndex + 1; i < toIndex && i < len(order); i++ {
		if i < 0 {
			continue
		}
		id := order[i]
		if view.Status(id) == schema.StatusComplete {
			continue
		}
		warnings = append(warnings, schema.NavigationWarning{
			Kind:     schema.WarnMissingContent,
			SourceID: id,
			Message:  fmt.Sprintf("skipping over %s, which has no completed content yet", id),
			Severity: schema.SeverityInfo,
		})
	}

	return JumpResult{
		Safe:     !RequiresConfirmation(warnings),
		Warnings: warnings,
	}
}
