package resolve

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lherron/aiomigrate/internal/domain"
	"github.com/lherron/aiomigrate/internal/merge"
)

// FolderRules returns a merge hook that rewrites smart folder rules from
// source policy ids to target policy ids
func FolderRules(src *Source, r *Resolver) merge.PrepareFunc {
	return func(ctx context.Context, rec domain.ContainerRecord) (domain.ContainerSpec, error) {
		spec := domain.ContainerSpec{
			Name:        rec.Name,
			Kind:        rec.Kind,
			Description: rec.Description,
		}
		for _, group := range rec.RuleGroups {
			rules := make([]domain.Rule, 0, len(group.Rules))
			for _, rule := range group.Rules {
				if rule.Key() != domain.RuleKeyPolicy {
					rules = append(rules, rule)
					continue
				}
				rewritten, err := rewritePolicyRule(ctx, src, r, rule)
				if err != nil {
					return domain.ContainerSpec{}, err
				}
				rules = append(rules, rewritten)
			}
			spec.RuleGroups = append(spec.RuleGroups, domain.RuleGroup{Rules: rules})
		}
		return spec, nil
	}
}

func rewritePolicyRule(ctx context.Context, src *Source, r *Resolver, rule domain.Rule) (domain.Rule, error) {
	sourceID, err := strconv.ParseInt(rule.Value(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: policy rule value %q is not an id", domain.ErrPolicyNotFound, rule.Value())
	}
	policy, err := src.Policy(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	targetID, err := r.Policy(ctx, policy.Name)
	if err != nil {
		return nil, err
	}
	return rule.WithValue(strconv.FormatInt(targetID, 10)), nil
}
