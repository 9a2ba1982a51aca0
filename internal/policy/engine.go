package policy

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/infrapilot/infrapilot/internal/resource"
)

// Evaluate runs every enabled policy whose CloudPlatform matches against
// every resource whose Platform matches, returning the collected violations
// and whether compliance passed (no error-severity violation). Per-policy
// evaluation is fanned out with a bounded errgroup; the result is sorted
// before return so two evaluations of the same inputs always yield the same
// ordering (spec §8 determinism property).
func Evaluate(ctx context.Context, resources []resource.CanonicalResource, policies []Policy, compiler *Compiler) ([]Violation, bool, error) {
	type partial struct {
		violations []Violation
	}

	results := make([]partial, len(policies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, p := range policies {
		if !p.Enabled {
			continue
		}
		i, p := i, p
		g.Go(func() error {
			rule, err := compileRule(gctx, compiler, p)
			if err != nil {
				// An uncompilable policy is skipped, not fatal. The compile
				// error is dropped here: it is neither logged nor returned
				// to the caller.
				return nil
			}

			var vs []Violation
			for _, r := range resources {
				r := r
				if !platformMatches(p.CloudPlatform, r.Platform) {
					continue
				}
				evalFn, ok := evaluators[rule.Kind]
				if !ok {
					continue
				}
				if detail := evalFn(&r, rule); detail != "" {
					vs = append(vs, Violation{
						PolicyID:     p.ID,
						PolicyName:   p.Name,
						ResourceName: r.Name,
						Detail:       detail,
						Severity:     p.Severity,
					})
				}
			}
			results[i] = partial{violations: vs}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	var all []Violation
	for _, r := range results {
		all = append(all, r.violations...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].ResourceName != all[j].ResourceName {
			return all[i].ResourceName < all[j].ResourceName
		}
		return all[i].PolicyID < all[j].PolicyID
	})

	passed := true
	for _, v := range all {
		if v.Severity == SeverityError {
			passed = false
			break
		}
	}

	return all, passed, nil
}

func compileRule(ctx context.Context, compiler *Compiler, p Policy) (CompiledRule, error) {
	if p.CompiledLogic != nil {
		return *p.CompiledLogic, nil
	}
	return compiler.Compile(ctx, p)
}

func platformMatches(policyPlatform Platform, resourcePlatform string) bool {
	if policyPlatform == PlatformAll || policyPlatform == "" {
		return true
	}
	return string(policyPlatform) == resourcePlatform
}
