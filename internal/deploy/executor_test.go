package deploy

import (
	"context"
	"os"
	"testing"
	"time"
)

// fakeRunner is a scripted Runner: each call to Run returns the recorded
// error or response for its terraform subcommand (the same one on every
// call), or a zero exit code when none is recorded. Grounded on the teacher's
// fakes-over-mocks testing idiom (internal/agent/apply_test.go).
type fakeRunner struct {
	responses map[string]*RunResult
	errors    map[string]error
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ []string, subcommand string, _ ...string) (*RunResult, error) {
	f.calls = append(f.calls, subcommand)
	if err, ok := f.errors[subcommand]; ok {
		return nil, err
	}
	if res, ok := f.responses[subcommand]; ok {
		return res, nil
	}
	return &RunResult{ExitCode: 0}, nil
}

func newTestExecutor(t *testing.T, runner Runner) *Executor {
	t.Helper()
	dir := t.TempDir()
	return NewExecutor(runner, dir, Timeouts{
		Init: time.Second, Plan: time.Second, Apply: time.Second, Destroy: time.Second,
	}, time.Millisecond)
}

func TestPlan_Success(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{
		responses: map[string]*RunResult{
			"plan": {Stdout: "Plan: 3 to add, 1 to change, 0 to destroy.", ExitCode: 0},
		},
	}
	e := newTestExecutor(t, runner)

	d, err := e.Plan(context.Background(), "sess-1", "env-1", map[string]string{"main.tf": "resource \"x\" {}"}, map[string]string{"AWS_ACCESS_KEY_ID": "secret"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if d.Status != StatusPlanReady {
		t.Fatalf("want plan_ready, got %s (err=%s)", d.Status, d.ErrorMessage)
	}
	if d.PlanSummary != (PlanSummary{Add: 3, Change: 1, Destroy: 0}) {
		t.Errorf("unexpected plan summary: %+v", d.PlanSummary)
	}
	if _, err := os.Stat(d.WorkingDir); err != nil {
		t.Errorf("working directory should exist immediately after plan: %v", err)
	}
	if len(runner.calls) != 2 || runner.calls[0] != "init" || runner.calls[1] != "plan" {
		t.Errorf("expected init then plan, got %v", runner.calls)
	}
}

func TestPlan_InitFailureTransitionsToPlanFailed(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{
		responses: map[string]*RunResult{
			"init": {Stderr: "no credentials", ExitCode: 1},
		},
	}
	e := newTestExecutor(t, runner)

	d, err := e.Plan(context.Background(), "sess-1", "env-1", map[string]string{"main.tf": ""}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if d.Status != StatusPlanFailed {
		t.Fatalf("want plan_failed, got %s", d.Status)
	}
	if d.ErrorMessage == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestApply_RequiresPlanReady(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(t, &fakeRunner{})

	d, err := e.Plan(context.Background(), "sess-1", "env-1", nil, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// Force the deployment back to pending to simulate a premature apply.
	d.Status = StatusPending
	e.save(d)

	if _, err := e.Apply(context.Background(), d.DeploymentID, nil); err == nil {
		t.Fatal("expected apply to reject a non-plan_ready deployment")
	}
}

func TestApply_SuccessCapturesOutputs(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{
		responses: map[string]*RunResult{
			"plan":   {Stdout: "Plan: 1 to add, 0 to change, 0 to destroy.", ExitCode: 0},
			"apply":  {Stdout: "Apply complete!", ExitCode: 0},
			"output": {Stdout: `{"bucket_name":{"value":"my-bucket","sensitive":false}}`, ExitCode: 0},
		},
	}
	e := newTestExecutor(t, runner)

	d, err := e.Plan(context.Background(), "sess-1", "env-1", map[string]string{"main.tf": ""}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if d.Status != StatusPlanReady {
		t.Fatalf("want plan_ready, got %s", d.Status)
	}

	d, err = e.Apply(context.Background(), d.DeploymentID, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d.Status != StatusApplySuccess {
		t.Fatalf("want apply_success, got %s (err=%s)", d.Status, d.ErrorMessage)
	}
	if got := d.TerraformOutputs["bucket_name"]; got != "my-bucket" {
		t.Errorf("want bucket_name=my-bucket, got %v", got)
	}
}

func TestApply_FailureTransitionsToApplyFailed(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{
		responses: map[string]*RunResult{
			"plan":  {Stdout: "Plan: 1 to add, 0 to change, 0 to destroy.", ExitCode: 0},
			"apply": {Stderr: "access denied", ExitCode: 1},
		},
	}
	e := newTestExecutor(t, runner)

	d, _ := e.Plan(context.Background(), "sess-1", "env-1", nil, nil)
	d, err := e.Apply(context.Background(), d.DeploymentID, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d.Status != StatusApplyFailed {
		t.Fatalf("want apply_failed, got %s", d.Status)
	}
}

func TestDestroy_IdempotentOnTerminalState(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{
		responses: map[string]*RunResult{
			"destroy": {Stdout: "Destroy complete!", ExitCode: 0},
		},
	}
	e := newTestExecutor(t, runner)

	d, _ := e.Plan(context.Background(), "sess-1", "env-1", nil, nil)
	d, err := e.Destroy(context.Background(), d.DeploymentID, nil)
	if err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if d.Status != StatusDestroyed {
		t.Fatalf("want destroyed, got %s", d.Status)
	}

	callsBefore := len(runner.calls)
	d2, err := e.Destroy(context.Background(), d.DeploymentID, nil)
	if err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if d2.Status != StatusDestroyed {
		t.Fatalf("want destroyed after idempotent call, got %s", d2.Status)
	}
	if len(runner.calls) != callsBefore {
		t.Error("second Destroy call on a terminal deployment should not invoke the runner again")
	}
}

func TestPlan_CleansUpWorkingDirectoryAfterRetention(t *testing.T) {
	t.Parallel()
	// Cleanup is only scheduled for terminal states; a failed init leaves
	// the deployment in plan_failed.
	runner := &fakeRunner{
		responses: map[string]*RunResult{
			"init": {Stderr: "no credentials", ExitCode: 1},
		},
	}
	e := newTestExecutor(t, runner)

	d, err := e.Plan(context.Background(), "sess-1", "env-1", map[string]string{"main.tf": ""}, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, statErr := os.Stat(d.WorkingDir); os.IsNotExist(statErr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("working directory %s was not cleaned up within the retention window", d.WorkingDir)
}

func TestUnknownDeployment(t *testing.T) {
	t.Parallel()
	e := newTestExecutor(t, &fakeRunner{})

	if _, err := e.Apply(context.Background(), "does-not-exist", nil); err == nil {
		t.Error("expected Apply on an unknown deployment to error")
	}
	if _, err := e.Destroy(context.Background(), "does-not-exist", nil); err == nil {
		t.Error("expected Destroy on an unknown deployment to error")
	}
}
