package synth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/infrapilot/infrapilot/internal/resource"
)

// renderCtx is the variable scope a template body is rendered against: the
// resource's own fields plus helper values the assembly pass injects
// (e.g. an azure_rg_ref resolution table).
type renderCtx map[string]any

// filters are the small set named in spec §4.5. Each takes the raw value and
// returns its rendered string form.
var filters = map[string]func(v any, ctx renderCtx) (string, error){
	"safe_id": func(v any, _ renderCtx) (string, error) {
		return resource.SafeID(fmt.Sprint(v)), nil
	},
	"azure_rg_ref": func(v any, ctx renderCtx) (string, error) {
		name := fmt.Sprint(v)
		// If the named resource group exists as an azure_resource_group
		// resource in this synthesis pass, reference it; otherwise treat it
		// as a literal (existing, unmanaged resource group).
		if known, _ := ctx["_known_resource_groups"].(map[string]bool); known[strings.ToLower(name)] {
			return fmt.Sprintf("azurerm_resource_group.%s.name", resource.SafeID(name)), nil
		}
		return strconv.Quote(name), nil
	},
	"fromjson": func(v any, _ renderCtx) (string, error) {
		// Properties reaching templates are usually already native Go
		// values (maps/slices from parsed LLM or spreadsheet input).
		// Embedded JSON text (a user-supplied literal) is the exception,
		// so only fall back to json.Unmarshal for plain strings.
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return "", fmt.Errorf("fromjson: %w", err)
			}
			return renderHCLValue(decoded), nil
		}
		return renderHCLValue(v), nil
	},
}

// renderHCLValue renders an arbitrary Go value (either native, from direct
// construction, or decoded from JSON) as an HCL literal. Map keys are
// sorted so the same input always renders to the same bytes.
func renderHCLValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = renderHCLValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = strconv.Quote(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s = %s\n", k, renderHCLValue(val[k]))
		}
		b.WriteString("  }")
		return b.String()
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s = %s\n", k, strconv.Quote(val[k]))
		}
		b.WriteString("  }")
		return b.String()
	default:
		return "null"
	}
}

// Render interprets a minimal mustache-plus-filters template body against
// ctx. Supported constructs: {{var}}, {{var|filter}}, {{#each list}}...{{/each}}
// (each iteration scopes "." to the current item), {{#if var}}...{{/if}}.
func Render(body string, ctx renderCtx) (string, error) {
	out, _, err := renderBlock(tokenize(body), ctx)
	return out, err
}

type token struct {
	kind string // "text", "var", "each-open", "each-close", "if-open", "if-close"
	text string // literal text, or the expression inside {{ }}
}

func tokenize(body string) []token {
	var tokens []token
	rest := body
	for {
		idx := strings.Index(rest, "{{")
		if idx == -1 {
			tokens = append(tokens, token{kind: "text", text: rest})
			break
		}
		if idx > 0 {
			tokens = append(tokens, token{kind: "text", text: rest[:idx]})
		}
		end := strings.Index(rest[idx:], "}}")
		if end == -1 {
			tokens = append(tokens, token{kind: "text", text: rest[idx:]})
			break
		}
		expr := strings.TrimSpace(rest[idx+2 : idx+end])
		rest = rest[idx+end+2:]

		switch {
		case strings.HasPrefix(expr, "#each "):
			tokens = append(tokens, token{kind: "each-open", text: strings.TrimSpace(strings.TrimPrefix(expr, "#each "))})
		case expr == "/each":
			tokens = append(tokens, token{kind: "each-close"})
		case strings.HasPrefix(expr, "#if "):
			tokens = append(tokens, token{kind: "if-open", text: strings.TrimSpace(strings.TrimPrefix(expr, "#if "))})
		case expr == "/if":
			tokens = append(tokens, token{kind: "if-close"})
		default:
			tokens = append(tokens, token{kind: "var", text: expr})
		}
	}
	return tokens
}

// renderBlock renders tokens until a matching close tag (or EOF), returning
// the rendered text and the number of tokens consumed.
func renderBlock(tokens []token, ctx renderCtx) (string, int, error) {
	var b strings.Builder
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch tok.kind {
		case "text":
			b.WriteString(tok.text)
			i++
		case "var":
			s, err := renderVar(tok.text, ctx)
			if err != nil {
				return "", 0, err
			}
			b.WriteString(s)
			i++
		case "each-open":
			inner, consumed, err := findBlock(tokens[i+1:], "each-open", "each-close")
			if err != nil {
				return "", 0, err
			}
			listVal := lookup(tok.text, ctx)
			items := toSlice(listVal)
			for idx, item := range items {
				itemCtx := make(renderCtx, len(ctx)+2)
				for k, v := range ctx {
					itemCtx[k] = v
				}
				itemCtx["."] = item
				itemCtx["@index"] = idx
				rendered, _, err := renderBlock(inner, itemCtx)
				if err != nil {
					return "", 0, err
				}
				b.WriteString(rendered)
			}
			i += 1 + consumed
		case "if-open":
			inner, consumed, err := findBlock(tokens[i+1:], "if-open", "if-close")
			if err != nil {
				return "", 0, err
			}
			if truthy(lookup(tok.text, ctx)) {
				rendered, _, err := renderBlock(inner, ctx)
				if err != nil {
					return "", 0, err
				}
				b.WriteString(rendered)
			}
			i += 1 + consumed
		case "each-close", "if-close":
			return b.String(), i, nil
		}
	}
	return b.String(), i, nil
}

// findBlock returns the tokens between a just-consumed open tag and its
// matching close tag, handling nesting of the same construct.
func findBlock(tokens []token, openKind, closeKind string) ([]token, int, error) {
	depth := 0
	for i, tok := range tokens {
		if tok.kind == openKind {
			depth++
		}
		if tok.kind == closeKind {
			if depth == 0 {
				return tokens[:i], i + 1, nil
			}
			depth--
		}
	}
	return nil, 0, fmt.Errorf("synth: unterminated %s block", openKind)
}

func renderVar(expr string, ctx renderCtx) (string, error) {
	parts := strings.Split(expr, "|")
	val := lookup(strings.TrimSpace(parts[0]), ctx)
	if len(parts) == 1 {
		return fmt.Sprint(val), nil
	}
	filterName := strings.TrimSpace(parts[1])
	fn, ok := filters[filterName]
	if !ok {
		return "", fmt.Errorf("synth: unknown filter %q", filterName)
	}
	return fn(val, ctx)
}

// lookup resolves a dotted path against ctx, with "." referring to the
// current each-loop item and ".field" addressing one of its fields.
func lookup(path string, ctx renderCtx) any {
	if path == "." {
		return ctx["."]
	}
	if strings.HasPrefix(path, ".") {
		item := ctx["."]
		return fieldOf(item, strings.TrimPrefix(path, "."))
	}
	if v, ok := ctx[path]; ok {
		return v
	}
	return nil
}

func fieldOf(v any, field string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m[field]
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out
	default:
		return nil
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
