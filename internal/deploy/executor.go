package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timeouts holds the independently configured per-subcommand timeouts named
// in spec §5 — a timeout transitions the relevant state to its _failed
// variant, mirroring the server's probeTimeout idiom (internal/server/health.go).
type Timeouts struct {
	Init    time.Duration
	Plan    time.Duration
	Apply   time.Duration
	Destroy time.Duration
}

// DefaultTimeouts mirrors the teacher's health-check probeTimeout default of
// a few seconds, scaled up for a real terraform subprocess.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Init:    2 * time.Minute,
		Plan:    5 * time.Minute,
		Apply:   30 * time.Minute,
		Destroy: 30 * time.Minute,
	}
}

// Executor runs the terraform plan/apply/destroy lifecycle per spec §4.6,
// keyed by deployment_id, with one working directory and one lock per
// deployment. Safe for concurrent use across independent deployments; a
// per-deployment mutex serializes apply against a still-writing plan or a
// second concurrent apply, per spec §5.
type Executor struct {
	runner    Runner
	baseDir   string
	timeouts  Timeouts
	retention time.Duration

	mu          sync.Mutex
	deployments map[string]*Deployment
	locks       map[string]*sync.Mutex
	cancels     map[string]context.CancelFunc
}

// NewExecutor constructs an Executor. baseDir is the parent of every
// deployment's working directory (created if missing); retention is how
// long a deployment's working directory is kept on disk after reaching a
// terminal state, for post-mortem diagnostics, before cleanup runs.
func NewExecutor(runner Runner, baseDir string, timeouts Timeouts, retention time.Duration) *Executor {
	return &Executor{
		runner:      runner,
		baseDir:     baseDir,
		timeouts:    timeouts,
		retention:   retention,
		deployments: map[string]*Deployment{},
		locks:       map[string]*sync.Mutex{},
		cancels:     map[string]context.CancelFunc{},
	}
}

func (e *Executor) lockFor(deploymentID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.locks[deploymentID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[deploymentID] = m
	}
	return m
}

// Get returns the deployment record for deploymentID, or false if unknown.
func (e *Executor) Get(deploymentID string) (*Deployment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.deployments[deploymentID]
	return d, ok
}

// Adopt registers a deployment record obtained from external persistence
// (e.g. internal/store.DeploymentStore, or the CLI's flat-file cache) with
// this Executor instance, so a process that did not run the original Plan
// can still call Apply/Destroy against it. The working directory named on
// the record must still exist on this machine.
func (e *Executor) Adopt(d *Deployment) {
	e.save(d)
}

func (e *Executor) save(d *Deployment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d.UpdatedAt = time.Now()
	e.deployments[d.DeploymentID] = d
}

// Cancel sends a cancellation signal to the subprocess currently running for
// deploymentID, if any. It is a no-op if the deployment is not in flight.
func (e *Executor) Cancel(deploymentID string) {
	e.mu.Lock()
	cancel, ok := e.cancels[deploymentID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// planSummaryRE matches terraform's human-readable plan summary line, e.g.
// "Plan: 3 to add, 1 to change, 0 to destroy."
var planSummaryRE = regexp.MustCompile(`Plan:\s*(\d+)\s*to add,\s*(\d+)\s*to change,\s*(\d+)\s*to destroy`)

// Plan creates a fresh deployment, writes files into a new working
// directory, injects credentials into the child process environment only
// (never to disk), and runs `terraform init` then `terraform plan
// -out=tfplan`. Transitions pending -> planning -> {plan_ready | plan_failed}.
func (e *Executor) Plan(ctx context.Context, sessionID, environmentID string, files map[string]string, credentials map[string]string) (*Deployment, error) {
	deploymentID := uuid.NewString()
	dir := filepath.Join(e.baseDir, deploymentID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("deploy: creating working directory: %w", err)
	}

	d := &Deployment{
		DeploymentID:  deploymentID,
		SessionID:     sessionID,
		EnvironmentID: environmentID,
		Status:        StatusPending,
		WorkingDir:    dir,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	e.save(d)

	lock := e.lockFor(deploymentID)
	lock.Lock()
	defer lock.Unlock()
	defer e.cleanupAfterRetention(d)

	for name, content := range files {
		p := filepath.Join(dir, filepath.Clean(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			d.Status = StatusPlanFailed
			d.ErrorMessage = fmt.Sprintf("writing %s: %v", name, err)
			e.save(d)
			return d, nil
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			d.Status = StatusPlanFailed
			d.ErrorMessage = fmt.Sprintf("writing %s: %v", name, err)
			e.save(d)
			return d, nil
		}
	}

	d.Status = StatusPlanning
	e.save(d)

	env := e.childEnv(credentials)
	defer zeroEnv(env)

	initCtx, cancel := e.trackedContext(ctx, deploymentID, e.timeouts.Init)
	defer cancel()
	if res, err := e.runner.Run(initCtx, dir, env, "init", "-input=false"); err != nil || res.ExitCode != 0 {
		d.Status = StatusPlanFailed
		d.ErrorMessage = initFailureMessage(res, err)
		e.save(d)
		return d, nil
	}

	planCtx, cancelPlan := e.trackedContext(ctx, deploymentID, e.timeouts.Plan)
	defer cancelPlan()
	res, err := e.runner.Run(planCtx, dir, env, "plan", "-input=false", "-out=tfplan")
	if err != nil {
		d.Status = StatusPlanFailed
		d.ErrorMessage = err.Error()
		e.save(d)
		return d, nil
	}
	d.PlanOutput = res.Stdout
	if res.ExitCode != 0 {
		d.Status = StatusPlanFailed
		d.ErrorMessage = res.Stderr
		e.save(d)
		return d, nil
	}
	d.PlanSummary = parsePlanSummary(res.Stdout)
	d.Status = StatusPlanReady
	e.save(d)
	return d, nil
}

// Apply requires a deployment in plan_ready and runs `terraform apply
// tfplan`, capturing output and `terraform output -json`. Transitions to
// apply_success or apply_failed.
func (e *Executor) Apply(ctx context.Context, deploymentID string, credentials map[string]string) (*Deployment, error) {
	d, ok := e.Get(deploymentID)
	if !ok {
		return nil, fmt.Errorf("deploy: unknown deployment %q", deploymentID)
	}
	if d.Status != StatusPlanReady {
		return nil, fmt.Errorf("deploy: apply requires plan_ready, deployment %q is %q", deploymentID, d.Status)
	}

	lock := e.lockFor(deploymentID)
	lock.Lock()
	defer lock.Unlock()
	defer e.cleanupAfterRetention(d)

	d.Status = StatusApplying
	e.save(d)

	env := e.childEnv(credentials)
	defer zeroEnv(env)

	applyCtx, cancel := e.trackedContext(ctx, deploymentID, e.timeouts.Apply)
	defer cancel()
	res, err := e.runner.Run(applyCtx, d.WorkingDir, env, "apply", "-input=false", "tfplan")
	if err != nil {
		d.Status = StatusApplyFailed
		d.ErrorMessage = err.Error()
		e.save(d)
		return d, nil
	}
	d.ApplyOutput = res.Stdout
	if res.ExitCode != 0 {
		d.Status = StatusApplyFailed
		d.ErrorMessage = res.Stderr
		e.save(d)
		return d, nil
	}

	outRes, err := e.runner.Run(applyCtx, d.WorkingDir, env, "output", "-json")
	if err == nil && outRes.ExitCode == 0 {
		d.TerraformOutputs = parseTerraformOutputs(outRes.Stdout)
	}

	d.Status = StatusApplySuccess
	e.save(d)
	return d, nil
}

// Destroy runs `terraform destroy -auto-approve` in the deployment's
// working directory. Idempotent relative to terminal state: calling
// Destroy on an already-destroyed deployment is a no-op.
func (e *Executor) Destroy(ctx context.Context, deploymentID string, credentials map[string]string) (*Deployment, error) {
	d, ok := e.Get(deploymentID)
	if !ok {
		return nil, fmt.Errorf("deploy: unknown deployment %q", deploymentID)
	}
	if d.Status == StatusDestroyed {
		return d, nil
	}

	lock := e.lockFor(deploymentID)
	lock.Lock()
	defer lock.Unlock()
	defer e.cleanupAfterRetention(d)

	d.Status = StatusDestroying
	e.save(d)

	env := e.childEnv(credentials)
	defer zeroEnv(env)

	destroyCtx, cancel := e.trackedContext(ctx, deploymentID, e.timeouts.Destroy)
	defer cancel()
	res, err := e.runner.Run(destroyCtx, d.WorkingDir, env, "destroy", "-input=false", "-auto-approve")
	if err != nil || res.ExitCode != 0 {
		// spec §4.6's state machine has no destroy_failed terminal state;
		// a failed destroy falls back to apply_failed, the nearest existing
		// "infrastructure may still be partially live" terminal state.
		d.Status = StatusApplyFailed
		if err != nil {
			d.ErrorMessage = err.Error()
		} else {
			d.ErrorMessage = res.Stderr
		}
		e.save(d)
		return d, nil
	}

	d.Status = StatusDestroyed
	e.save(d)
	return d, nil
}

// trackedContext derives a cancelable context from ctx bounded by timeout,
// registering the cancel func so Cancel(deploymentID) can interrupt the
// in-flight subprocess from another goroutine.
func (e *Executor) trackedContext(ctx context.Context, deploymentID string, timeout time.Duration) (context.Context, context.CancelFunc) {
	child, cancel := context.WithTimeout(ctx, timeout)
	e.mu.Lock()
	e.cancels[deploymentID] = cancel
	e.mu.Unlock()
	return child, func() {
		cancel()
		e.mu.Lock()
		delete(e.cancels, deploymentID)
		e.mu.Unlock()
	}
}

// cleanupAfterRetention schedules the working directory for removal once
// the deployment has sat in a terminal state for the retention window.
// Registered with defer on every Plan/Apply/Destroy call so cleanup is
// scheduled on every exit path that ends in a terminal state, including
// early returns on error, per spec §5.
func (e *Executor) cleanupAfterRetention(d *Deployment) {
	dir := d.WorkingDir
	if dir == "" {
		return
	}
	if !d.Status.terminal() {
		return
	}
	time.AfterFunc(e.retention, func() {
		_ = os.RemoveAll(dir)
	})
}

// childEnv builds the environment for the terraform child process: the
// parent's own environment plus the supplied credentials, appended last so
// they win on duplicate keys. Credentials never touch disk — they exist
// only in this slice, passed directly to exec.Cmd.Env.
func (e *Executor) childEnv(credentials map[string]string) []string {
	env := os.Environ()
	for k, v := range credentials {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// zeroEnv blanks every entry of env in place, the inherited parent
// environment as well as the injected credentials.
// Go strings are immutable and a compiler may have copied these bytes
// elsewhere, so this is best-effort hygiene, not a security guarantee —
// it prevents the slice itself from holding a readable copy any longer
// than necessary.
func zeroEnv(env []string) {
	for i := range env {
		env[i] = ""
	}
}

func initFailureMessage(res *RunResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if res != nil {
		return res.Stderr
	}
	return "terraform init failed"
}

func parsePlanSummary(output string) PlanSummary {
	m := planSummaryRE.FindStringSubmatch(output)
	if m == nil {
		return PlanSummary{}
	}
	add, _ := strconv.Atoi(m[1])
	change, _ := strconv.Atoi(m[2])
	destroy, _ := strconv.Atoi(m[3])
	return PlanSummary{Add: add, Change: change, Destroy: destroy}
}
