package rule_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/bastion/rule"
)

func TestSpecIsZero(t *testing.T) {
	var nilSpec *rule.Spec
	if !nilSpec.IsZero() {
		t.Error("nil spec should be zero")
	}
	if !(&rule.Spec{}).IsZero() {
		t.Error("empty spec should be zero")
	}
	if (&rule.Spec{Name: "allow"}).IsZero() {
		t.Error("named spec should not be zero")
	}
	if (&rule.Spec{Conditions: []rule.Condition{{Field: "x", Operator: rule.OpExists}}}).IsZero() {
		t.Error("conditional spec should not be zero")
	}
}

func TestResolveZeroSpecAllows(t *testing.T) {
	reg := rule.NewRegistry()

	r, err := reg.Resolve(&rule.Spec{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	ok, err := r.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !ok {
		t.Error("zero spec should resolve to allow")
	}
}

func TestResolveBuiltins(t *testing.T) {
	reg := rule.NewRegistry()
	ctx := context.Background()

	allow, err := reg.Resolve(&rule.Spec{Name: rule.NameAllow})
	if err != nil {
		t.Fatalf("resolve allow: %v", err)
	}
	if ok, _ := allow.Execute(ctx, nil); !ok {
		t.Error("allow rule should pass")
	}

	deny, err := reg.Resolve(&rule.Spec{Name: rule.NameDeny})
	if err != nil {
		t.Fatalf("resolve deny: %v", err)
	}
	if ok, _ := deny.Execute(ctx, nil); ok {
		t.Error("deny rule should fail")
	}
}

func TestResolveUnregisteredName(t *testing.T) {
	reg := rule.NewRegistry()

	_, err := reg.Resolve(&rule.Spec{Name: "no-such-rule"})
	if !errors.Is(err, rule.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegisterOverwrites(t *testing.T) {
	reg := rule.NewRegistry()
	reg.RegisterFunc("flip", func(context.Context, rule.Params) (bool, error) {
		return false, nil
	})
	reg.RegisterFunc("flip", func(context.Context, rule.Params) (bool, error) {
		return true, nil
	})

	r, ok := reg.Get("flip")
	if !ok {
		t.Fatal("rule not found after register")
	}
	if pass, _ := r.Execute(context.Background(), nil); !pass {
		t.Error("second registration should win")
	}
}

func TestArgsMergedUnderParams(t *testing.T) {
	reg := rule.NewRegistry()
	var seen rule.Params
	reg.RegisterFunc("capture", func(_ context.Context, p rule.Params) (bool, error) {
		seen = p
		return true, nil
	})

	r, err := reg.Resolve(&rule.Spec{
		Name: "capture",
		Args: map[string]any{"min_age": 18, "region": "eu"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := r.Execute(context.Background(), rule.Params{"region": "us"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if seen["min_age"] != 18 {
		t.Errorf("expected default arg min_age=18, got %v", seen["min_age"])
	}
	if seen["region"] != "us" {
		t.Errorf("check params should win on collision, got %v", seen["region"])
	}
}

func TestConditions(t *testing.T) {
	reg := rule.NewRegistry()
	ctx := context.Background()

	tests := []struct {
		name   string
		cond   rule.Condition
		params rule.Params
		want   bool
	}{
		{"eq match", rule.Condition{Field: "dept", Operator: rule.OpEquals, Value: "eng"}, rule.Params{"dept": "eng"}, true},
		{"eq mismatch", rule.Condition{Field: "dept", Operator: rule.OpEquals, Value: "eng"}, rule.Params{"dept": "sales"}, false},
		{"neq", rule.Condition{Field: "dept", Operator: rule.OpNotEquals, Value: "eng"}, rule.Params{"dept": "sales"}, true},
		{"in", rule.Condition{Field: "env", Operator: rule.OpIn, Value: []any{"staging", "prod"}}, rule.Params{"env": "prod"}, true},
		{"not_in", rule.Condition{Field: "env", Operator: rule.OpNotIn, Value: []string{"prod"}}, rule.Params{"env": "dev"}, true},
		{"contains", rule.Condition{Field: "email", Operator: rule.OpContains, Value: "@corp."}, rule.Params{"email": "a@corp.io"}, true},
		{"starts_with", rule.Condition{Field: "path", Operator: rule.OpStartsWith, Value: "/admin"}, rule.Params{"path": "/admin/users"}, true},
		{"ends_with", rule.Condition{Field: "file", Operator: rule.OpEndsWith, Value: ".pdf"}, rule.Params{"file": "report.pdf"}, true},
		{"gt", rule.Condition{Field: "age", Operator: rule.OpGreaterThan, Value: 18}, rule.Params{"age": 21}, true},
		{"gt fails equal", rule.Condition{Field: "age", Operator: rule.OpGreaterThan, Value: 18}, rule.Params{"age": 18}, false},
		{"gte equal", rule.Condition{Field: "age", Operator: rule.OpGTE, Value: 18}, rule.Params{"age": 18}, true},
		{"lt", rule.Condition{Field: "count", Operator: rule.OpLessThan, Value: 10}, rule.Params{"count": 3}, true},
		{"lte", rule.Condition{Field: "count", Operator: rule.OpLTE, Value: 10}, rule.Params{"count": 10}, true},
		{"exists", rule.Condition{Field: "token", Operator: rule.OpExists}, rule.Params{"token": "x"}, true},
		{"exists missing", rule.Condition{Field: "token", Operator: rule.OpExists}, rule.Params{}, false},
		{"not_exists", rule.Condition{Field: "ban", Operator: rule.OpNotExists}, rule.Params{}, true},
		{"nested field", rule.Condition{Field: "user.org", Operator: rule.OpEquals, Value: "acme"}, rule.Params{"user": map[string]any{"org": "acme"}}, true},
		{"nested missing", rule.Condition{Field: "user.org", Operator: rule.OpEquals, Value: "acme"}, rule.Params{"user": "flat"}, false},
		{"ip_in_cidr", rule.Condition{Field: "ip", Operator: rule.OpIPInCIDR, Value: "10.0.0.0/8"}, rule.Params{"ip": "10.1.2.3"}, true},
		{"ip_in_cidr miss", rule.Condition{Field: "ip", Operator: rule.OpIPInCIDR, Value: "10.0.0.0/8"}, rule.Params{"ip": "192.168.1.1"}, false},
		{"ip_in_cidr list", rule.Condition{Field: "ip", Operator: rule.OpIPInCIDR, Value: []any{"10.0.0.0/8", "192.168.0.0/16"}}, rule.Params{"ip": "192.168.1.1"}, true},
		{"regex", rule.Condition{Field: "sku", Operator: rule.OpRegex, Value: `^SKU-\d{4}$`}, rule.Params{"sku": "SKU-1234"}, true},
		{"time_after", rule.Condition{Field: "at", Operator: rule.OpTimeAfter, Value: "2020-01-01T00:00:00Z"}, rule.Params{"at": "2024-06-01T00:00:00Z"}, true},
		{"time_before", rule.Condition{Field: "at", Operator: rule.OpTimeBefore, Value: "2020-01-01T00:00:00Z"}, rule.Params{"at": "2024-06-01T00:00:00Z"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := reg.Resolve(&rule.Spec{Conditions: []rule.Condition{tt.cond}})
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			got, err := r.Execute(ctx, tt.params)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionErrors(t *testing.T) {
	reg := rule.NewRegistry()
	ctx := context.Background()

	r, err := reg.Resolve(&rule.Spec{Conditions: []rule.Condition{
		{Field: "x", Operator: "bogus_op", Value: 1},
	}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := r.Execute(ctx, rule.Params{"x": 1}); !errors.Is(err, rule.ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition for unknown operator, got %v", err)
	}

	r, err = reg.Resolve(&rule.Spec{Conditions: []rule.Condition{
		{Field: "x", Operator: rule.OpRegex, Value: "("},
	}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := r.Execute(ctx, rule.Params{"x": "a"}); !errors.Is(err, rule.ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition for bad regex, got %v", err)
	}
}

func TestNameAndConditionsComposeAND(t *testing.T) {
	reg := rule.NewRegistry()
	ctx := context.Background()

	spec := &rule.Spec{
		Name: rule.NameAllow,
		Conditions: []rule.Condition{
			{Field: "env", Operator: rule.OpEquals, Value: "prod"},
		},
	}
	r, err := reg.Resolve(spec)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if ok, _ := r.Execute(ctx, rule.Params{"env": "prod"}); !ok {
		t.Error("both parts pass, expected allow")
	}
	if ok, _ := r.Execute(ctx, rule.Params{"env": "dev"}); ok {
		t.Error("failing condition should deny despite allow rule")
	}

	spec.Name = rule.NameDeny
	r, err = reg.Resolve(spec)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ok, _ := r.Execute(ctx, rule.Params{"env": "prod"}); ok {
		t.Error("deny rule should deny despite passing condition")
	}
}
