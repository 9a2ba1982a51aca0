package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/callbacks"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/internal/policy"
	"github.com/infrapilot/infrapilot/internal/provider"
	"github.com/infrapilot/infrapilot/internal/spreadsheet"
	"github.com/infrapilot/infrapilot/internal/store"
	"github.com/infrapilot/infrapilot/internal/tracing"
	"github.com/infrapilot/infrapilot/internal/workflow"
)

// NewPipelineCmd constructs the `infrapilot pipeline` command, which runs
// the five-stage intent pipeline (parse -> collect -> comply -> generate ->
// review) for a single turn and prints the resulting workflow state and any
// generated Terraform files — the CLI-driven counterpart to POST /api/chat.
func NewPipelineCmd() *cobra.Command {
	var sessionID string
	var policiesPath string
	var spreadsheetPath string
	var dbPath string
	var outDir string

	cmd := &cobra.Command{
		Use:   "pipeline [message]",
		Short: "Run the infra-intent pipeline for one conversational turn",
		Long: `Run the parse -> collect -> comply -> generate -> review pipeline for a
single turn, against a durable per-session state.

Examples:
  infrapilot pipeline "create an aws ec2 web server in us-east-1, tag Project=demo"
  infrapilot pipeline --session acme-1 "Tags: Owner=platform-team"
  infrapilot pipeline --spreadsheet resources.xlsx "" --out ./generated`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			var message string
			if len(args) == 1 {
				message = args[0]
			}

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("pipeline: failed to initialise model provider: %w", err)
			}

			retriever, closeRetriever, err := buildRetriever(ctx, log)
			if err != nil {
				return fmt.Errorf("pipeline: failed to initialise RAG retriever: %w", err)
			}
			defer closeRetriever()

			policies, err := loadPolicies(policiesPath)
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}

			deps := workflow.Deps{
				ChatModel:        chatModel,
				Retriever:        retriever,
				RAGTopK:          5,
				MaxContextTokens: 6000,
				Policies:         policies,
				Compiler:         policy.NewCompiler(chatModel),
			}

			stateStore, closeStore, err := resolveStateStore(dbPath)
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}
			defer closeStore()

			runner := workflow.NewRunner(deps, stateStore)

			var spreadsheetResources []workflow.CanonicalResourceInput
			if spreadsheetPath != "" {
				f, err := os.Open(spreadsheetPath)
				if err != nil {
					return fmt.Errorf("pipeline: opening spreadsheet %q: %w", spreadsheetPath, err)
				}
				defer f.Close()

				resources, parseErrs, warnings, err := spreadsheet.Parse(f)
				if err != nil {
					return fmt.Errorf("pipeline: parsing spreadsheet: %w", err)
				}
				for _, w := range warnings {
					log.Warn("pipeline: spreadsheet warning", slog.String("detail", w))
				}
				for _, e := range parseErrs {
					log.Warn("pipeline: spreadsheet row error", slog.String("detail", e))
				}
				for _, r := range resources {
					spreadsheetResources = append(spreadsheetResources, workflow.CanonicalResourceInput{
						Platform:   r.Platform,
						Type:       r.Type,
						Name:       r.Name,
						Properties: r.Properties,
					})
				}
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			state, err := runner.Run(ctx, sessionID, message, spreadsheetResources)
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}

			printWorkflowState(cmd, state)

			if outDir != "" && len(state.GeneratedCode) > 0 {
				if err := writeGeneratedCode(outDir, state.GeneratedCode); err != nil {
					return fmt.Errorf("pipeline: writing generated code: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nwrote %d file(s) to %s\n", len(state.GeneratedCode), outDir)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to resume; a new one is generated if omitted")
	cmd.Flags().StringVar(&policiesPath, "policies", "", "Path to a JSON file containing an array of policies to enforce")
	cmd.Flags().StringVar(&spreadsheetPath, "spreadsheet", "", "Path to an .xlsx resource spreadsheet to seed the session")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite path for durable session state (defaults to in-memory, lost on exit)")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory to write generated Terraform files into")

	return cmd
}

// loadPolicies reads a JSON array of policy.Policy from path, validating
// every entry's struct tags (required fields, cloud_platform/severity enum
// membership) before returning. An empty path means no policies are
// enforced (comply always passes).
func loadPolicies(path string) ([]policy.Policy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policies file %q: %w", path, err)
	}
	var policies []policy.Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("parsing policies file %q: %w", path, err)
	}
	for _, p := range policies {
		if err := policy.Validate(p); err != nil {
			return nil, fmt.Errorf("policy %q: %w", p.ID, err)
		}
	}
	return policies, nil
}

// resolveStateStore returns a SQLite-backed StateStore when dbPath is set,
// or the in-process default otherwise. The returned closer must always be
// called.
func resolveStateStore(dbPath string) (workflow.StateStore, func(), error) {
	if dbPath == "" {
		return workflow.NewMemoryStateStore(), func() {}, nil
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening state database %q: %w", dbPath, err)
	}
	return workflow.NewSQLiteStateStore(s.DB()), func() { _ = s.Close() }, nil
}

// printWorkflowState renders a compact human-readable summary of the
// resulting state, mirroring the chat endpoint's metadata envelope (§6).
func printWorkflowState(cmd *cobra.Command, state *workflow.WorkflowState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session:               %s\n", state.SessionID)
	fmt.Fprintf(out, "workflow_state:        %s\n", state.State)
	fmt.Fprintf(out, "resource_count:        %d\n", len(state.Resources))
	fmt.Fprintf(out, "information_complete:  %t\n", state.InformationComplete)
	if state.CompliancePassed != nil {
		fmt.Fprintf(out, "compliance_passed:     %t\n", *state.CompliancePassed)
	}
	if len(state.Violations) > 0 {
		fmt.Fprintf(out, "violations:\n")
		for _, v := range state.Violations {
			fmt.Fprintf(out, "  - [%s] %s: %s\n", v.Severity, v.ResourceName, v.Detail)
		}
	}
	if len(state.Messages) > 0 {
		last := state.Messages[len(state.Messages)-1]
		if last.Role == "assistant" {
			fmt.Fprintf(out, "message:               %s\n", last.Content)
		}
	}
	for _, e := range state.Errors {
		fmt.Fprintf(out, "error[%s]:             %s\n", e.Kind, e.Message)
	}
}

// writeGeneratedCode writes each filename -> content pair under dir.
func writeGeneratedCode(dir string, files map[string]string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, content := range files {
		if err := os.WriteFile(dir+string(os.PathSeparator)+name, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}
