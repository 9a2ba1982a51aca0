package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/internal/deploy"
	"github.com/infrapilot/infrapilot/internal/store"
)

// deployStatePath is where the local CLI persists its deployment records
// between `deploy plan`/`deploy apply`/`deploy destroy` invocations — the
// CLI has no long-running process to keep deploy.Executor's in-memory map
// alive across separate command runs, so each invocation rehydrates the
// one deployment it's told about via --deployment-id.
const deployStatePath = ".infrapilot/deployments"

// NewDeployCmd constructs the `infrapilot deploy` command group wrapping
// internal/deploy's plan/apply/destroy state machine (spec §4.6).
func NewDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Plan, apply, or destroy a generated Terraform project",
	}
	cmd.AddCommand(newDeployPlanCmd(), newDeployApplyCmd(), newDeployDestroyCmd(), newDeployShowCmd())
	return cmd
}

func newExecutorAndStore() (*deploy.Executor, error) {
	workDir := getEnvOrDefault("INFRAPILOT_DEPLOY_WORKDIR", filepath.Join(os.TempDir(), "infrapilot-deployments"))
	runner, err := deploy.NewExecRunner()
	if err != nil {
		return nil, err
	}
	timeouts := deploy.Timeouts{
		Init:    time.Duration(getEnvInt("INFRAPILOT_DEPLOY_INIT_TIMEOUT_SECONDS", 120)) * time.Second,
		Plan:    time.Duration(getEnvInt("INFRAPILOT_DEPLOY_PLAN_TIMEOUT_SECONDS", 300)) * time.Second,
		Apply:   time.Duration(getEnvInt("INFRAPILOT_DEPLOY_APPLY_TIMEOUT_SECONDS", 1800)) * time.Second,
		Destroy: time.Duration(getEnvInt("INFRAPILOT_DEPLOY_DESTROY_TIMEOUT_SECONDS", 1800)) * time.Second,
	}
	retention := time.Duration(getEnvInt("INFRAPILOT_DEPLOY_RETENTION_MINUTES", 60)) * time.Minute
	return deploy.NewExecutor(runner, workDir, timeouts, retention), nil
}

// loadCredentials reads a flat JSON object of credential env var names to
// values from path, e.g. {"AWS_ACCESS_KEY_ID": "...", "AWS_SECRET_ACCESS_KEY": "..."}.
// Credentials never touch the working directory — only the child process
// environment (internal/deploy.Executor.childEnv).
func loadCredentials(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file %q: %w", path, err)
	}
	var creds map[string]string
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file %q: %w", path, err)
	}
	return creds, nil
}

// cliDeploymentRecord wraps a deploy.Deployment with its WorkingDir, which
// Deployment itself deliberately excludes from JSON (internal/deploy's
// persistence contract treats the working directory as local-machine,
// process-local state). The CLI has no long-running process, so it needs
// this one extra field to find the directory again across invocations.
type cliDeploymentRecord struct {
	*deploy.Deployment
	WorkingDir string `json:"working_dir"`
}

// persistDeployment records the deployment_id -> working directory mapping
// so a later `deploy apply`/`deploy destroy` invocation (a fresh process)
// can find it again. This is a CLI-only bridge; dbPath, when set, also
// upserts the record into internal/store.DeploymentStore (WorkingDir
// excluded, same durability a server process would rely on after restart).
func persistDeployment(d *deploy.Deployment, dbPath string) error {
	if err := os.MkdirAll(deployStatePath, 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(cliDeploymentRecord{Deployment: d, WorkingDir: d.WorkingDir}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(deployStatePath, d.DeploymentID+".json"), raw, 0o600); err != nil {
		return err
	}

	if dbPath == "" {
		return nil
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening deployment database %q: %w", dbPath, err)
	}
	defer s.Close()
	return store.NewDeploymentStore(s).Save(context.Background(), d)
}

func loadDeploymentRecord(deploymentID string) (*deploy.Deployment, error) {
	raw, err := os.ReadFile(filepath.Join(deployStatePath, deploymentID+".json"))
	if err != nil {
		return nil, fmt.Errorf("deployment %q not found: %w", deploymentID, err)
	}
	var rec cliDeploymentRecord
	rec.Deployment = &deploy.Deployment{}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	rec.Deployment.WorkingDir = rec.WorkingDir
	return rec.Deployment, nil
}

func newDeployPlanCmd() *cobra.Command {
	var sessionID, environmentID, dir, credsPath, dbPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Write a Terraform project and run init + plan in an isolated working directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			files, err := readTerraformFiles(dir)
			if err != nil {
				return fmt.Errorf("deploy plan: %w", err)
			}
			creds, err := loadCredentials(credsPath)
			if err != nil {
				return fmt.Errorf("deploy plan: %w", err)
			}

			executor, err := newExecutorAndStore()
			if err != nil {
				return fmt.Errorf("deploy plan: %w", err)
			}

			d, err := executor.Plan(ctx, sessionID, environmentID, files, creds)
			if err != nil {
				return fmt.Errorf("deploy plan: %w", err)
			}
			if err := persistDeployment(d, dbPath); err != nil {
				return fmt.Errorf("deploy plan: persisting deployment record: %w", err)
			}

			printDeployment(cmd, d)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "cli-session", "Session id that produced this Terraform project")
	cmd.Flags().StringVar(&environmentID, "environment", "default", "Target environment id")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory containing the .tf files to plan")
	cmd.Flags().StringVar(&credsPath, "credentials", "", "Path to a JSON file of credential env vars")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path to also persist the deployment record durably")

	return cmd
}

func newDeployApplyCmd() *cobra.Command {
	var deploymentID, credsPath, dbPath string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a deployment that is in plan_ready",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rec, err := loadDeploymentRecord(deploymentID)
			if err != nil {
				return fmt.Errorf("deploy apply: %w", err)
			}
			creds, err := loadCredentials(credsPath)
			if err != nil {
				return fmt.Errorf("deploy apply: %w", err)
			}

			executor, err := newExecutorAndStore()
			if err != nil {
				return fmt.Errorf("deploy apply: %w", err)
			}
			executor.Adopt(rec)

			d, err := executor.Apply(ctx, deploymentID, creds)
			if err != nil {
				return fmt.Errorf("deploy apply: %w", err)
			}
			if err := persistDeployment(d, dbPath); err != nil {
				return fmt.Errorf("deploy apply: persisting deployment record: %w", err)
			}

			printDeployment(cmd, d)
			return nil
		},
	}

	cmd.Flags().StringVar(&deploymentID, "deployment-id", "", "Deployment id returned by `deploy plan`")
	cmd.Flags().StringVar(&credsPath, "credentials", "", "Path to a JSON file of credential env vars")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path to also persist the deployment record durably")
	_ = cmd.MarkFlagRequired("deployment-id")

	return cmd
}

func newDeployDestroyCmd() *cobra.Command {
	var deploymentID, credsPath, dbPath string

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy a deployment's infrastructure",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rec, err := loadDeploymentRecord(deploymentID)
			if err != nil {
				return fmt.Errorf("deploy destroy: %w", err)
			}
			creds, err := loadCredentials(credsPath)
			if err != nil {
				return fmt.Errorf("deploy destroy: %w", err)
			}

			executor, err := newExecutorAndStore()
			if err != nil {
				return fmt.Errorf("deploy destroy: %w", err)
			}
			executor.Adopt(rec)

			d, err := executor.Destroy(ctx, deploymentID, creds)
			if err != nil {
				return fmt.Errorf("deploy destroy: %w", err)
			}
			if err := persistDeployment(d, dbPath); err != nil {
				return fmt.Errorf("deploy destroy: persisting deployment record: %w", err)
			}

			printDeployment(cmd, d)
			return nil
		},
	}

	cmd.Flags().StringVar(&deploymentID, "deployment-id", "", "Deployment id to destroy")
	cmd.Flags().StringVar(&credsPath, "credentials", "", "Path to a JSON file of credential env vars")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path to also persist the deployment record durably")
	_ = cmd.MarkFlagRequired("deployment-id")

	return cmd
}

func newDeployShowCmd() *cobra.Command {
	var deploymentID string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the last known status of a deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := loadDeploymentRecord(deploymentID)
			if err != nil {
				return fmt.Errorf("deploy show: %w", err)
			}
			printDeployment(cmd, rec)
			return nil
		},
	}

	cmd.Flags().StringVar(&deploymentID, "deployment-id", "", "Deployment id to show")
	_ = cmd.MarkFlagRequired("deployment-id")

	return cmd
}

// readTerraformFiles reads every regular file directly under dir into a
// relative-path -> content map suitable for Executor.Plan.
func readTerraformFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %q: %w", dir, err)
	}
	files := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", entry.Name(), err)
		}
		files[entry.Name()] = string(content)
	}
	return files, nil
}

func printDeployment(cmd *cobra.Command, d *deploy.Deployment) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "deployment_id:   %s\n", d.DeploymentID)
	fmt.Fprintf(out, "status:          %s\n", d.Status)
	fmt.Fprintf(out, "plan_summary:    +%d ~%d -%d\n", d.PlanSummary.Add, d.PlanSummary.Change, d.PlanSummary.Destroy)
	if d.ErrorMessage != "" {
		fmt.Fprintf(out, "error_message:   %s\n", d.ErrorMessage)
	}
	if len(d.TerraformOutputs) > 0 {
		fmt.Fprintf(out, "terraform_outputs:\n")
		for k, v := range d.TerraformOutputs {
			fmt.Fprintf(out, "  %s = %v\n", k, v)
		}
	}
}
