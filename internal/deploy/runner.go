package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// RunResult holds the output of a terraform CLI invocation. Mirrors
// tools.RunResult; duplicated here because deployments need an env
// parameter tools.Runner does not carry.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a terraform subcommand in a working directory with an
// explicit environment, the one addition over tools.Runner needed to inject
// cloud credentials into the child process without ever touching disk.
type Runner interface {
	Run(ctx context.Context, dir string, env []string, subcommand string, args ...string) (*RunResult, error)
}

// ExecRunner implements Runner by shelling out to the real terraform binary,
// the same exec.CommandContext + stdout/stderr capture + exit-code pattern
// as tools.ExecRunner.
type ExecRunner struct{}

// NewExecRunner returns a new ExecRunner, verifying terraform is on PATH.
func NewExecRunner() (*ExecRunner, error) {
	if _, err := exec.LookPath("terraform"); err != nil {
		return nil, fmt.Errorf("deploy: terraform binary not found on PATH — install terraform first")
	}
	return &ExecRunner{}, nil
}

func (r *ExecRunner) Run(ctx context.Context, dir string, env []string, subcommand string, args ...string) (*RunResult, error) {
	cmdArgs := append([]string{subcommand}, args...)
	cmd := exec.CommandContext(ctx, "terraform", cmdArgs...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("deploy: running terraform %s: %w", subcommand, err)
		}
	}

	return &RunResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}
