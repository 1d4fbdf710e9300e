package render

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/lherron/aiomigrate/internal/domain"
)

// PlanDiff returns a unified diff of a target's container paths before and
// after a planned merge. It is empty when the plan creates nothing.
func PlanDiff(target string, before, after []domain.Path) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        pathLines(before),
		B:        pathLines(after),
		FromFile: target + " (current)",
		ToFile:   target + " (planned)",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}

func pathLines(paths []domain.Path) []string {
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = p.String() + "\n"
	}
	return lines
}
