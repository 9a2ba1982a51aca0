package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/infrapilot/infrapilot/internal/policy"
	"github.com/infrapilot/infrapilot/internal/resource"
)

func azureVMResource() resource.CanonicalResource {
	return resource.CanonicalResource{
		Platform: "azure",
		Type:     "azure_vm",
		Name:     "my-vm",
		Properties: map[string]any{
			"size":           "Standard_B2s",
			"resource_group": "my-rg",
			"location":       "eastus",
			"admin_username": "azureadmin",
			"os":             "linux",
			"ssh_key":        "ssh-rsa AAAA...",
			"Tags":           map[string]string{},
		},
	}
}

func requireProjectTagPolicy() policy.Policy {
	return policy.Policy{
		ID:                  "req-project",
		Name:                "require project tag",
		NaturalLanguageRule: "require tags: Project",
		CloudPlatform:       policy.PlatformAll,
		Severity:            policy.SeverityError,
		Enabled:             true,
	}
}

// Test_FollowUpTagRepair covers spec §8 scenario 1: turn 1 fails comply on a
// missing Project tag, turn 2 supplies it via merge, and comply then passes.
func Test_FollowUpTagRepair(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	compiler := policy.NewCompiler(nil)
	deps := &Deps{Policies: []policy.Policy{requireProjectTagPolicy()}, Compiler: compiler}

	state := NewState("session-1")
	state.Resources = []resource.CanonicalResource{azureVMResource()}

	state, err := runCollect(ctx, deps, state)
	if err != nil {
		t.Fatalf("runCollect (turn 1): %v", err)
	}
	if !state.InformationComplete {
		t.Fatalf("expected information complete on turn 1, missing=%+v", state.MissingFields)
	}

	state, err = runComply(ctx, deps, state)
	if err == nil {
		t.Fatal("expected comply to fail on turn 1 (missing Project tag)")
	}
	if _, ok := err.(*ComplianceViolationError); !ok {
		t.Fatalf("want *ComplianceViolationError, got %T", err)
	}
	if state.CompliancePassed == nil || *state.CompliancePassed {
		t.Fatal("expected CompliancePassed=false on turn 1")
	}

	// Turn 2: the user supplies the missing tag. In production this arrives
	// via the parse stage's LLM extraction and resource.Merge; here we
	// exercise the merge directly since parse's LLM call is out of scope for
	// a unit test.
	incoming := []resource.CanonicalResource{
		{
			Platform:   "azure",
			Type:       "azure_vm",
			Name:       "my-vm",
			Properties: map[string]any{"Tags": map[string]string{"Project": "X", "Owner": "Y"}},
		},
	}
	state.Resources = resource.Merge(state.Resources, incoming)

	state, err = runComply(ctx, deps, state)
	if err != nil {
		t.Fatalf("runComply (turn 2): %v", err)
	}
	if state.CompliancePassed == nil || !*state.CompliancePassed {
		t.Fatalf("expected compliance to pass on turn 2, violations=%+v", state.Violations)
	}

	if len(state.Resources) != 1 {
		t.Fatalf("expected exactly one resource after merge, got %d", len(state.Resources))
	}
	tags := state.Resources[0].Tags()
	if tags["Project"] != "X" || tags["Owner"] != "Y" {
		t.Fatalf("unexpected tags after merge: %+v", tags)
	}

	state, err = runGenerate(ctx, &Deps{}, state)
	if err != nil {
		t.Fatalf("runGenerate: %v", err)
	}
	if !containsAll(state.GeneratedCode["main.tf"], `Project = "X"`, `Owner = "Y"`) {
		t.Fatalf("expected tags block in generated main.tf:\n%s", state.GeneratedCode["main.tf"])
	}
}

// Test_EmptyOutputDetection covers spec §8 scenario 6: a resource whose
// template is absent fails generate with a TemplateError, and no code is
// produced.
func Test_EmptyOutputDetection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	state := NewState("session-2")
	state.Resources = []resource.CanonicalResource{
		{
			Platform:   "aws",
			Type:       "aws_unsupported_widget",
			Name:       "thing",
			Properties: map[string]any{"Tags": map[string]string{}},
		},
	}

	state, err := runGenerate(ctx, &Deps{}, state)
	if err == nil {
		t.Fatal("expected runGenerate to fail for an unregistered template")
	}
	if _, ok := err.(*TemplateError); !ok {
		t.Fatalf("want *TemplateError, got %T: %v", err, err)
	}
	if len(state.GeneratedCode) != 0 {
		t.Fatalf("expected no generated code, got %+v", state.GeneratedCode)
	}
}

// Test_Run_SpreadsheetSeed exercises Runner.Run end-to-end without an LLM
// call, via the spreadsheet-seed predicate.
func Test_Run_SpreadsheetSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	compiler := policy.NewCompiler(nil)
	runner := NewRunner(Deps{Compiler: compiler}, nil)

	seeded := []CanonicalResourceInput{
		{
			Platform: "aws", Type: "aws_s3", Name: "data-bucket",
			Properties: map[string]any{"Tags": map[string]string{"Project": "X"}},
		},
	}

	state, err := runner.Run(ctx, "sess-seed", "", seeded)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.State != StageCompleted {
		t.Fatalf("expected StageCompleted, got %q (errors=%+v)", state.State, state.Errors)
	}
	if len(state.GeneratedCode) == 0 {
		t.Fatal("expected generated code for a complete, compliant spreadsheet seed")
	}
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}
