package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker"
)

// compileSystemPrompt instructs the LLM fallback compiler to return a rigid
// JSON schema, the same "LLM is a rigid-schema extractor" philosophy the
// parse stage uses for resource extraction.
const compileSystemPrompt = `You compile a single organizational infrastructure policy, written in plain English, into one JSON object describing its executable rule.

Supported rule kinds:
- {"kind": "block_ports", "ports": [int], "directions": ["ingress"|"egress"], "cidrs": ["0.0.0.0/0"]}
- {"kind": "required_tags", "tags": ["TagName", ...]}

If the rule does not match either shape, return {"kind": "unknown"}.
Return ONLY the JSON object, no other text.`

// Compiler compiles natural-language policy rules into CompiledRule objects,
// caching results by policy ID for the lifetime of the process.
type Compiler struct {
	llm     model.ToolCallingChatModel
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	cache map[string]CompiledRule
}

// NewCompiler constructs a Compiler. llm may be nil — in that case only the
// pattern fast-path is available and novel phrasing fails to compile.
func NewCompiler(llm model.ToolCallingChatModel) *Compiler {
	return &Compiler{
		llm:   llm,
		cache: make(map[string]CompiledRule),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "policy-compiler-llm",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Compile returns the CompiledRule for p, using the cache when present, the
// pattern table when the rule matches a known shape, and the LLM fallback
// (guarded by a circuit breaker) otherwise. A wedged provider degrades to
// "treat as unparsed, skip" rather than blocking comply indefinitely.
func (c *Compiler) Compile(ctx context.Context, p Policy) (CompiledRule, error) {
	c.mu.Lock()
	if cached, ok := c.cache[p.ID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	if rule, ok := compileByPattern(p.NaturalLanguageRule); ok {
		c.store(p.ID, rule)
		return rule, nil
	}

	if c.llm == nil {
		return CompiledRule{}, fmt.Errorf("policy: %q does not match a known pattern and no LLM fallback is configured", p.Name)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.compileByLLM(ctx, p.NaturalLanguageRule)
	})
	if err != nil {
		return CompiledRule{}, fmt.Errorf("policy: compiling %q: %w", p.Name, err)
	}

	rule := result.(CompiledRule)
	c.store(p.ID, rule)
	return rule, nil
}

func (c *Compiler) store(id string, rule CompiledRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[id] = rule
}

var (
	blockPortsPattern = regexp.MustCompile(`(?i)block\s+port(?:s)?\s+([\d,\s]+)`)
	requiredTagPattern = regexp.MustCompile(`(?i)require(?:s|d)?\s+tag(?:s)?[:\s]+([a-zA-Z0-9_,\s]+)`)
)

// compileByPattern handles the two known rule shapes from spec §4.4 without
// an LLM call: "block port(s) 22, 3389" and "require tags: Project, Owner".
func compileByPattern(rule string) (CompiledRule, bool) {
	if m := blockPortsPattern.FindStringSubmatch(rule); m != nil {
		ports := parseIntList(m[1])
		if len(ports) == 0 {
			return CompiledRule{}, false
		}
		directions := []string{"ingress"}
		if strings.Contains(strings.ToLower(rule), "egress") {
			directions = []string{"egress"}
		}
		return CompiledRule{
			Kind: KindBlockPorts,
			BlockPorts: &BlockPortsRule{
				Ports:      ports,
				Directions: directions,
			},
		}, true
	}

	if m := requiredTagPattern.FindStringSubmatch(rule); m != nil {
		tags := parseTagList(m[1])
		if len(tags) == 0 {
			return CompiledRule{}, false
		}
		return CompiledRule{
			Kind:         KindRequiredTags,
			RequiredTags: &RequiredTagsRule{Tags: tags},
		}, true
	}

	return CompiledRule{}, false
}

func parseIntList(s string) []int {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseTagList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// llmCompileResult mirrors the JSON schema dictated in compileSystemPrompt.
type llmCompileResult struct {
	Kind       string   `json:"kind"`
	Ports      []int    `json:"ports"`
	Directions []string `json:"directions"`
	CIDRs      []string `json:"cidrs"`
	Tags       []string `json:"tags"`
}

func (c *Compiler) compileByLLM(ctx context.Context, rule string) (CompiledRule, error) {
	timeout := 20 * time.Second
	if n, err := strconv.Atoi(os.Getenv("INFRAPILOT_POLICY_COMPILE_TIMEOUT_SECONDS")); err == nil && n > 0 {
		timeout = time.Duration(n) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msgs := []*schema.Message{
		schema.SystemMessage(compileSystemPrompt),
		schema.UserMessage(rule),
	}
	resp, err := c.llm.Generate(ctx, msgs)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("llm generate: %w", err)
	}
	if resp == nil {
		return CompiledRule{}, fmt.Errorf("llm returned nil response")
	}

	var parsed llmCompileResult
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return CompiledRule{}, fmt.Errorf("llm response is not valid JSON: %w", err)
	}

	switch RuleKind(parsed.Kind) {
	case KindBlockPorts:
		return CompiledRule{Kind: KindBlockPorts, BlockPorts: &BlockPortsRule{
			Ports: parsed.Ports, Directions: parsed.Directions, CIDRs: parsed.CIDRs,
		}}, nil
	case KindRequiredTags:
		return CompiledRule{Kind: KindRequiredTags, RequiredTags: &RequiredTagsRule{Tags: parsed.Tags}}, nil
	default:
		return CompiledRule{}, fmt.Errorf("unrecognized or unparseable rule kind %q", parsed.Kind)
	}
}
