package domain

import (
	"testing"
)

func TestPath(t *testing.T) {
	p := Path{"Root", "Linux", "Prod"}

	if got := p.String(); got != "Root/Linux/Prod" {
		t.Errorf("String() = %q", got)
	}
	if got := p.Parent(); !got.Equal(Path{"Root", "Linux"}) {
		t.Errorf("Parent() = %v", got)
	}
	if got := (Path{"Root"}).Parent(); got != nil {
		t.Errorf("root Parent() = %v, want nil", got)
	}

	child := p.Parent().Child("Dev")
	if !child.Equal(Path{"Root", "Linux", "Dev"}) {
		t.Errorf("Child() = %v", child)
	}
	// Child must not alias the receiver's backing array.
	if !p.Equal(Path{"Root", "Linux", "Prod"}) {
		t.Errorf("Child() mutated receiver: %v", p)
	}

	if (Path{"a/b"}).Key() == (Path{"a", "b"}).Key() {
		t.Error("Key() should distinguish names containing separators")
	}
	if (Path{"Linux"}).Equal(Path{"linux"}) {
		t.Error("paths must compare case-sensitively")
	}
}

func TestRuleValue(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{name: "string", rule: Rule{"key": "general-policy", "value": "12"}, want: "12"},
		{name: "float", rule: Rule{"key": "general-policy", "value": float64(12)}, want: "12"},
		{name: "missing", rule: Rule{"key": "general-policy"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Value(); got != tt.want {
				t.Errorf("Value() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRuleWithValueCopies(t *testing.T) {
	r := Rule{"key": RuleKeyPolicy, "value": "1", "operator": "equal"}
	out := r.WithValue("42")

	if r.Value() != "1" {
		t.Errorf("original rule mutated: %v", r)
	}
	if out.Value() != "42" || out["operator"] != "equal" || out.Key() != RuleKeyPolicy {
		t.Errorf("WithValue() = %v", out)
	}
}

func TestEffectiveName(t *testing.T) {
	if got := EffectiveName("", "Weekly Scan"); got != "Weekly Scan" {
		t.Errorf("EffectiveName() = %q", got)
	}
	if got := EffectiveName("DS-", "Weekly Scan"); got != "DS-Weekly Scan" {
		t.Errorf("EffectiveName() = %q", got)
	}
}
