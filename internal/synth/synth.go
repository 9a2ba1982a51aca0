// Package synth dispatches canonical resources to per-(platform,type)
// templates and assembles a complete Terraform project.
package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/infrapilot/infrapilot/internal/resource"
)

// minMainTFBytes is the threshold below which a populated main.tf is
// considered suspiciously short per spec §7 (EmptyOutput).
const minMainTFBytes = 50

// TemplateError mirrors workflow.TemplateError's shape without importing
// the workflow package (synth must not depend on workflow — the dependency
// runs the other way). The workflow generate stage wraps this into its own
// taxonomy type at the stage boundary.
type TemplateError struct {
	Platform       string
	NormalizedType string
	Available      []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("synth: no template registered for %s/%s (available: %v)", e.Platform, e.NormalizedType, e.Available)
}

// EmptyOutputError mirrors workflow.EmptyOutputError for the same reason.
type EmptyOutputError struct {
	Filename string
	Bytes    int
}

func (e *EmptyOutputError) Error() string {
	return fmt.Sprintf("synth: generated file %q is suspiciously short (%d bytes)", e.Filename, e.Bytes)
}

// Assemble renders every resource through its registered template and
// composes the five output files per spec §4.5. Resources are processed in
// their given order, which becomes main.tf's block order.
func Assemble(resources []resource.CanonicalResource) (map[string]string, error) {
	knownRGs := knownResourceGroups(resources)

	var mainBlocks []string
	platformsSeen := map[string]bool{}
	typeCounts := map[string]int{}

	for _, r := range resources {
		normalizedType := resource.NormalizeType(r.Type)
		tmpl, ok, available := Lookup(r.Platform, normalizedType)
		if !ok {
			return nil, &TemplateError{Platform: r.Platform, NormalizedType: normalizedType, Available: available}
		}

		ctx := resourceContext(r, knownRGs)
		block, err := Render(tmpl.Body, ctx)
		if err != nil {
			return nil, fmt.Errorf("synth: rendering %s/%s %q: %w", r.Platform, normalizedType, r.Name, err)
		}

		mainBlocks = append(mainBlocks, strings.TrimRight(block, "\n")+"\n")
		platformsSeen[r.Platform] = true
		typeCounts[normalizedType]++
	}

	mainTF := strings.Join(mainBlocks, "\n")
	if len(resources) > 0 && len(mainTF) < minMainTFBytes {
		return nil, &EmptyOutputError{Filename: "main.tf", Bytes: len(mainTF)}
	}

	files := map[string]string{
		"main.tf":      mainTF,
		"provider.tf":  renderProviderTF(platformsSeen),
		"variables.tf": renderVariablesTF(resources),
		"outputs.tf":   renderOutputsTF(resources),
		"README.md":    renderReadme(typeCounts),
	}
	return files, nil
}

// knownResourceGroups returns the lowercase names of every
// azure_resource_group resource in this synthesis pass, so azure_rg_ref can
// distinguish "reference a resource managed in this bundle" from "literal
// name of a pre-existing, unmanaged resource group".
func knownResourceGroups(resources []resource.CanonicalResource) map[string]bool {
	known := map[string]bool{}
	for _, r := range resources {
		if resource.NormalizeType(r.Type) == "azure_resource_group" {
			known[strings.ToLower(r.Name)] = true
		}
	}
	return known
}

// resourceContext builds the template variable scope for one resource:
// its own properties plus derived fields templates rely on (name, tags,
// OS-discriminated flags for azure_vm, the resource-group lookup table).
func resourceContext(r resource.CanonicalResource, knownRGs map[string]bool) renderCtx {
	ctx := make(renderCtx, len(r.Properties)+4)
	for k, v := range r.Properties {
		ctx[k] = v
	}
	ctx["name"] = r.Name
	ctx["tags"] = r.Tags()
	ctx["_known_resource_groups"] = knownRGs

	if os, _ := ctx["os"].(string); os != "" {
		ctx["is_windows"] = strings.EqualFold(os, "windows")
		ctx["is_linux"] = !strings.EqualFold(os, "windows")
	}

	return ctx
}

func renderProviderTF(platforms map[string]bool) string {
	var b strings.Builder
	var names []string
	for p := range platforms {
		names = append(names, p)
	}
	sort.Strings(names)

	b.WriteString("terraform {\n  required_providers {\n")
	for _, p := range names {
		switch p {
		case "aws":
			b.WriteString("    aws = {\n      source  = \"hashicorp/aws\"\n      version = \"~> 5.0\"\n    }\n")
		case "azure":
			b.WriteString("    azurerm = {\n      source  = \"hashicorp/azurerm\"\n      version = \"~> 3.0\"\n    }\n")
		}
	}
	b.WriteString("  }\n}\n\n")
	for _, p := range names {
		switch p {
		case "aws":
			b.WriteString("provider \"aws\" {}\n")
		case "azure":
			b.WriteString("provider \"azurerm\" {\n  features {}\n}\n")
		}
	}
	return b.String()
}

// renderVariablesTF declares a single pass-through "environment" variable
// whenever at least one resource is present. Templates inline literal
// values, so no other variables are declared.
func renderVariablesTF(resources []resource.CanonicalResource) string {
	if len(resources) == 0 {
		return ""
	}
	return `variable "environment" {
  description = "Deployment environment label."
  type        = string
  default     = "production"
}
`
}

func renderOutputsTF(resources []resource.CanonicalResource) string {
	var b strings.Builder
	for _, r := range resources {
		normalizedType := resource.NormalizeType(r.Type)
		id := resource.SafeID(r.Name)
		switch normalizedType {
		case "aws_ec2":
			fmt.Fprintf(&b, "output \"%s_instance_id\" {\n  value = aws_instance.%s.id\n}\n\n", id, id)
		case "aws_s3":
			fmt.Fprintf(&b, "output \"%s_bucket_name\" {\n  value = aws_s3_bucket.%s.bucket\n}\n\n", id, id)
		case "azure_vm":
			vmResourceType := "azurerm_linux_virtual_machine"
			if os, _ := r.Properties["os"].(string); strings.EqualFold(os, "windows") {
				vmResourceType = "azurerm_windows_virtual_machine"
			}
			fmt.Fprintf(&b, "output \"%s_vm_id\" {\n  value = %s.%s.id\n}\n\n", id, vmResourceType, id)
		case "azure_storage_account":
			fmt.Fprintf(&b, "output \"%s_storage_account_name\" {\n  value = azurerm_storage_account.%s.name\n}\n\n", id, id)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderReadme(typeCounts map[string]int) string {
	var types []string
	for t := range typeCounts {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("# Generated Terraform project\n\n")
	b.WriteString("## Resources\n\n")
	for _, t := range types {
		fmt.Fprintf(&b, "- `%s`: %d\n", t, typeCounts[t])
	}
	return b.String()
}
