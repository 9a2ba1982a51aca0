package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/infrapilot/infrapilot/internal/budget"
	"github.com/infrapilot/infrapilot/internal/rag"
	"github.com/infrapilot/infrapilot/internal/resource"
)

// parseSystemPrompt instructs the model to act as a rigid-schema extractor,
// the same philosophy as the teacher's terraform_generate envelope but with
// an extraction schema instead of a file-generation one.
const parseSystemPrompt = `You extract cloud infrastructure resources from a conversation into a strict JSON object.

Return ONLY a JSON object of this exact shape:

{
  "information_complete": bool,
  "resources": [
    {"platform": "aws"|"azure", "type": "<resource type>", "name": "<logical name>", "properties": {...}}
  ],
  "missing_fields": {"<resource name>": ["<field>", ...]},
  "message": "<optional note to the user>"
}

Rules:
- "resources" must always be the complete, up-to-date list of every resource
  mentioned so far in the conversation, not just resources mentioned in the
  latest message. A new turn adds or amends resources; it never drops one.
- Extract tag assignments from any phrasing: "Tags: {...}", "tag it with
  X=Y", "标签：X=Y", etc. Put them under properties.Tags as a flat string map.
- Put every other stated attribute under "properties" using snake_case keys.
- If you cannot determine whether enough information was given, set
  "information_complete": false and leave "resources" as your best-effort
  extraction so far.`

// parseResponse mirrors the JSON schema dictated in parseSystemPrompt.
type parseResponse struct {
	InformationComplete bool                    `json:"information_complete"`
	Resources           []parseResourceResponse `json:"resources"`
	MissingFields        map[string][]string    `json:"missing_fields"`
	Message              string                  `json:"message"`
}

type parseResourceResponse struct {
	Platform   string         `json:"platform"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// runParse is the parse stage. Per spec §4.2 it re-parses user input on
// every turn unless the spreadsheet-seed predicate holds, in which case it
// trusts the resources already on state and skips the LLM call entirely.
func runParse(ctx context.Context, deps *Deps, state *WorkflowState) (*WorkflowState, error) {
	emit(deps, string(StageParse), "started", "")

	if isSpreadsheetSeed(state) {
		state.InformationComplete = true
		state.appendAssistant(fmt.Sprintf("Loaded %d resource(s) from the uploaded spreadsheet.", len(state.Resources)))
		emit(deps, string(StageParse), "completed", "spreadsheet seed")
		return state, nil
	}

	messages, err := buildParseMessages(ctx, deps, state)
	if err != nil {
		emit(deps, string(StageParse), "failed", err.Error())
		return state, &InternalError{Stage: string(StageParse), Err: err}
	}

	resp, err := deps.ChatModel.Generate(ctx, messages)
	if err != nil {
		emit(deps, string(StageParse), "failed", err.Error())
		return state, &InternalError{Stage: string(StageParse), Err: err}
	}

	var parsed parseResponse
	if resp == nil || json.Unmarshal([]byte(resp.Content), &parsed) != nil {
		raw := ""
		if resp != nil {
			raw = resp.Content
		}
		state.appendAssistant("I couldn't understand that — could you rephrase your request?")
		emit(deps, string(StageParse), "failed", "parse error")
		return state, &ParseError{Raw: raw, Err: fmt.Errorf("response is not valid JSON per the extraction schema")}
	}

	if len(parsed.Resources) == 0 {
		if parsed.Message != "" {
			state.appendAssistant(parsed.Message)
		} else {
			state.appendAssistant("I didn't catch any infrastructure resources in that message — could you describe what you'd like to create?")
		}
		emit(deps, string(StageParse), "completed", "no resources extracted")
		return state, nil
	}

	extracted := make([]resource.CanonicalResource, 0, len(parsed.Resources))
	for _, r := range parsed.Resources {
		cr := resource.CanonicalResource{
			Platform:   r.Platform,
			Type:       resource.NormalizeType(r.Type),
			Name:       r.Name,
			Properties: r.Properties,
		}
		if cr.Properties == nil {
			cr.Properties = map[string]any{}
		}
		resource.MirrorMetadataTags(&cr)
		resource.ApplySafeDefaults(&cr)
		extracted = append(extracted, cr)
	}

	state.Resources = resource.Merge(state.Resources, extracted)
	state.InformationComplete = parsed.InformationComplete
	if parsed.Message != "" {
		state.appendAssistant(parsed.Message)
	}

	emit(deps, string(StageParse), "completed", fmt.Sprintf("%d resource(s) extracted", len(extracted)))
	return state, nil
}

// isSpreadsheetSeed implements the re-entry discrimination in spec §9: a
// spreadsheet upload is trusted verbatim only on the session's first turn.
func isSpreadsheetSeed(state *WorkflowState) bool {
	return state.InputType == InputSpreadsheet || (len(state.Resources) > 0 && len(state.Messages) <= 1)
}

// buildParseMessages assembles the LLM input for the parse stage: system
// prompt, optional RAG context, then the conversation turns trimmed to the
// token budget.
// Mirrors the shape of agent.TerraformAgent.buildMessages.
func buildParseMessages(ctx context.Context, deps *Deps, state *WorkflowState) ([]*schema.Message, error) {
	if deps.ChatModel == nil {
		return nil, fmt.Errorf("workflow: parse stage requires a ChatModel")
	}

	messages := []*schema.Message{schema.SystemMessage(parseSystemPrompt)}

	if deps.Retriever != nil && len(state.Messages) > 0 {
		lastUser := state.Messages[len(state.Messages)-1].Content
		topK := deps.RAGTopK
		if topK <= 0 {
			topK = 5
		}
		docs, err := deps.Retriever.Retrieve(ctx, lastUser, topK)
		if err == nil && len(docs) > 0 {
			messages = append(messages, schema.SystemMessage(buildRAGContext(docs)))
		}
	}

	var turns []*schema.Message
	for _, m := range state.Messages {
		switch m.Role {
		case "user":
			turns = append(turns, schema.UserMessage(m.Content))
		case "assistant":
			turns = append(turns, schema.AssistantMessage(m.Content, nil))
		}
	}

	maxTokens := deps.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	trimmed := budget.TrimHistory(messages, turns, maxTokens)

	return append(messages, trimmed...), nil
}

func buildRAGContext(docs []rag.Document) string {
	ctx := "## Relevant Terraform Documentation\n\n"
	for i, doc := range docs {
		ctx += fmt.Sprintf("### Source %d: %s\n%s\n\n", i+1, doc.Source, doc.Content)
	}
	return ctx
}
