package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/infrapilot/infrapilot/internal/agent"
	"github.com/infrapilot/infrapilot/internal/provider"
	"github.com/infrapilot/infrapilot/internal/tools"
)

// NewAskCmd constructs the `infrapilot ask` command, which sends a single natural
// language question to the agent and streams the response to stdout.
func NewAskCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the Terraform expert a question",
		Long: `Ask the InfraPilot agent a natural language question about Terraform.

The agent has access to your local Terraform workspace (set with --dir) and
can inspect plan output, state, and generated files.

Examples:
  infrapilot ask "how do I create an EKS cluster with private endpoints?"
  infrapilot ask --dir ./infra "why does my plan show resource replacement?"
  infrapilot ask "what is the best way to structure a multi-account AWS setup?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			runner, err := tools.NewExecRunner()
			if err != nil {
				// terraform not on PATH is non-fatal for ask — warn and continue.
				fmt.Fprintf(os.Stderr, "warning: %v (plan/state tools unavailable)\n", err)
				runner = nil
			}

			agentTools := buildTools(runner)

			retriever, closeRetriever, err := buildRetriever(ctx, slog.Default())
			if err != nil {
				return fmt.Errorf("ask: failed to initialise RAG retriever: %w", err)
			}
			defer closeRetriever()

			tfAgent, err := agent.New(ctx, &agent.Config{
				ChatModel: chatModel,
				Tools:     agentTools,
				Retriever: retriever,
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent: %w", err)
			}

			question := args[0]
			if dir != "" {
				question = fmt.Sprintf("[workspace: %s]\n\n%s", dir, question)
			}

			_, err = tfAgent.Query(ctx, question, "", os.Stdout) //nolint:wrapcheck // CLI entry point — error goes directly to cobra
			return err
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Terraform working directory to use as context")

	return cmd
}
