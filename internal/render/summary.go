package render

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/lherron/aiomigrate/internal/domain"
)

// Summary is the end-of-run report of one object kind
type Summary struct {
	RunID  string                 `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Kind   string                 `json:"kind" yaml:"kind"`
	DryRun bool                   `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Counts map[domain.Outcome]int `json:"counts" yaml:"counts"`
	Items  []domain.ItemResult    `json:"items" yaml:"items"`
}

// ReasonCount is the number of items that share an outcome and reason
type ReasonCount struct {
	Outcome domain.Outcome
	Reason  string
	Count   int
}

// NewSummary counts items by outcome
func NewSummary(kind string, items []domain.ItemResult) *Summary {
	s := &Summary{Kind: kind, Counts: make(map[domain.Outcome]int), Items: items}
	for _, item := range items {
		s.Counts[item.Outcome]++
	}
	return s
}

// Reasons groups failed and skipped items by reason, failures first
func (s *Summary) Reasons() []ReasonCount {
	idx := make(map[[2]string]int)
	var out []ReasonCount
	for _, item := range s.Items {
		if item.Outcome != domain.OutcomeFailed && item.Outcome != domain.OutcomeSkipped {
			continue
		}
		key := [2]string{string(item.Outcome), item.Reason}
		if i, ok := idx[key]; ok {
			out[i].Count++
			continue
		}
		idx[key] = len(out)
		out = append(out, ReasonCount{Outcome: item.Outcome, Reason: item.Reason, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Outcome != out[j].Outcome {
			return out[i].Outcome == domain.OutcomeFailed
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// Summary renders a run report: the item table, the counts, failures and
// skips grouped by reason, then every warning
func (r *Renderer) Summary(s *Summary) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(s)
	case FormatYAML:
		return r.RenderYAML(s)
	}

	headers := []string{"ITEM", "OUTCOME", "REASON", "TARGET"}
	rows := make([][]string, 0, len(s.Items))
	for _, item := range s.Items {
		target := ""
		if item.TargetID != 0 {
			target = strconv.FormatInt(item.TargetID, 10)
		}
		rows = append(rows, []string{item.Item, string(item.Outcome), item.Reason, target})
	}
	if err := r.RenderTable(headers, rows); err != nil {
		return err
	}

	w := r.writer
	if len(rows) > 0 {
		fmt.Fprintln(w)
	}
	written, label := s.Counts[domain.OutcomeCreated], "created"
	if s.DryRun {
		written, label = s.Counts[domain.OutcomePlanned], "planned"
	}
	fmt.Fprintf(w, "%s: %d %s, %d existing, %d skipped, %d failed\n", s.Kind, written, label,
		s.Counts[domain.OutcomeExisting], s.Counts[domain.OutcomeSkipped], s.Counts[domain.OutcomeFailed])

	reasons := s.Reasons()
	width := 0
	for _, rc := range reasons {
		if len(rc.Reason) > width {
			width = len(rc.Reason)
		}
	}
	for _, rc := range reasons {
		fmt.Fprintf(w, "  %-8s %-*s %d\n", rc.Outcome, width, rc.Reason, rc.Count)
	}

	header := false
	for _, item := range s.Items {
		for _, warning := range item.Warnings {
			if !header {
				fmt.Fprintln(w, "\nwarnings:")
				header = true
			}
			fmt.Fprintf(w, "  %s: %s\n", item.Item, warning)
		}
	}

	if s.RunID != "" {
		fmt.Fprintf(w, "\nrun %s\n", s.RunID)
	}
	return nil
}

// Summaries renders several reports of one run. JSON and YAML get a single
// list; tables are separated by a blank line and the run id is printed once.
func (r *Renderer) Summaries(list []*Summary) error {
	switch r.opts.Format {
	case FormatJSON:
		return r.RenderJSON(list)
	case FormatYAML:
		return r.RenderYAML(list)
	}

	for i, s := range list {
		if i > 0 {
			fmt.Fprintln(r.writer)
		}
		single := *s
		if i < len(list)-1 {
			single.RunID = ""
		}
		if err := r.Summary(&single); err != nil {
			return err
		}
	}
	return nil
}
