package policy

import (
	"context"
	"reflect"
	"testing"

	"github.com/infrapilot/infrapilot/internal/resource"
)

func blockSSHPolicy() Policy {
	return Policy{
		ID:                  "p1",
		Name:                "no open ssh",
		NaturalLanguageRule: "block port 22",
		CloudPlatform:       PlatformAWS,
		Severity:            SeverityError,
		Enabled:             true,
	}
}

func requireProjectTagPolicy() Policy {
	return Policy{
		ID:                  "p2",
		Name:                "require project tag",
		NaturalLanguageRule: "require tags: project",
		CloudPlatform:       PlatformAll,
		Severity:            SeverityError,
		Enabled:             true,
	}
}

func openSSHResource() resource.CanonicalResource {
	return resource.CanonicalResource{
		Platform: "aws",
		Type:     "aws_security_group",
		Name:     "web-sg",
		Properties: map[string]any{
			"ingress": []any{
				map[string]any{
					"from_port":   22,
					"to_port":     22,
					"direction":   "ingress",
					"cidr_blocks": []any{"0.0.0.0/0"},
				},
			},
			"Tags": map[string]string{},
		},
	}
}

// Test_Evaluate_PortBlock covers scenario 3 in spec §8: a security group
// opening port 22 to 0.0.0.0/0 against a block_ports policy fails comply.
func Test_Evaluate_PortBlock(t *testing.T) {
	t.Parallel()
	compiler := NewCompiler(nil)
	resources := []resource.CanonicalResource{openSSHResource()}
	policies := []Policy{blockSSHPolicy()}

	violations, passed, err := Evaluate(context.Background(), resources, policies, compiler)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if passed {
		t.Errorf("expected compliance to fail")
	}
	if len(violations) != 1 {
		t.Fatalf("want 1 violation, got %d: %+v", len(violations), violations)
	}
	if violations[0].ResourceName != "web-sg" {
		t.Errorf("violation resource = %q, want web-sg", violations[0].ResourceName)
	}
}

// Test_Evaluate_RequiredTags_CaseInsensitive covers scenario 2 in spec §8.
func Test_Evaluate_RequiredTags_CaseInsensitive(t *testing.T) {
	t.Parallel()
	compiler := NewCompiler(nil)
	resources := []resource.CanonicalResource{
		{
			Platform: "aws", Type: "aws_s3", Name: "data",
			Properties: map[string]any{"Tags": map[string]string{"project": "abc"}},
		},
	}
	policies := []Policy{requireProjectTagPolicy()}

	violations, passed, err := Evaluate(context.Background(), resources, policies, compiler)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !passed {
		t.Errorf("expected compliance to pass (case-insensitive tag match), got violations: %+v", violations)
	}
}

// Test_Evaluate_Determinism covers the policy-determinism property in
// spec §8: two evaluations on identical inputs yield the same violation set.
func Test_Evaluate_Determinism(t *testing.T) {
	t.Parallel()
	compiler := NewCompiler(nil)
	resources := []resource.CanonicalResource{
		openSSHResource(),
		{
			Platform: "aws", Type: "aws_ec2", Name: "app",
			Properties: map[string]any{"Tags": map[string]string{}},
		},
	}
	policies := []Policy{blockSSHPolicy(), requireProjectTagPolicy()}

	first, _, err := Evaluate(context.Background(), resources, policies, compiler)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, _, err := Evaluate(context.Background(), resources, policies, compiler)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two evaluations diverged:\n%+v\n%+v", first, second)
	}
}

func Test_CompileByPattern_BlockPorts(t *testing.T) {
	t.Parallel()
	rule, ok := compileByPattern("Block ports 22, 3389")
	if !ok {
		t.Fatal("expected pattern match")
	}
	if rule.Kind != KindBlockPorts {
		t.Fatalf("Kind = %v, want block_ports", rule.Kind)
	}
	want := []int{22, 3389}
	if !reflect.DeepEqual(rule.BlockPorts.Ports, want) {
		t.Errorf("Ports = %v, want %v", rule.BlockPorts.Ports, want)
	}
}

func Test_CompileByPattern_NoMatch(t *testing.T) {
	t.Parallel()
	_, ok := compileByPattern("all resources must use gp3 volumes")
	if ok {
		t.Fatal("expected no pattern match for a novel rule shape")
	}
}
