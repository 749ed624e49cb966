package filter

import "fmt"

// maxCompositeDepth bounds composite nesting: a composite's delegates may
// themselves be composite (one level of nesting), but a delegate at that
// second level must not itself be composite.
const maxCompositeDepth = 2

// CompositeFilter is implemented by a filter value that is not itself a
// request/response stage but instead expands into an ordered list of
// delegate sub-filters. The chain flattens a composite's delegates into its
// place at construction time, recursively, so the driver never has to know
// a composite was involved at all once the chain is built.
type CompositeFilter interface {
	Filters() []any
}

// expandFilters flattens every CompositeFilter in filters into its
// delegates, in order, recursively. Callers must run ValidateCapabilities
// first so the recursion depth is already known to be within bounds.
func expandFilters(filters []any) []any {
	out := make([]any, 0, len(filters))
	for _, f := range filters {
		if cf, ok := f.(CompositeFilter); ok {
			out = append(out, expandFilters(cf.Filters())...)
			continue
		}
		out = append(out, f)
	}
	return out
}

// validateCompositeDepth walks filters enforcing maxCompositeDepth, and
// that no value mixes CompositeFilter with a direct filter capability
// (RequestFilter, ResponseFilter, GenericRequestFilter, or APIKeyScoped) —
// a composite contributes only its delegates, never itself as a stage.
func validateCompositeDepth(filters []any, depth int) error {
	for _, f := range filters {
		cf, composite := f.(CompositeFilter)
		if !composite {
			continue
		}
		_, reqFilter := f.(RequestFilter)
		_, respFilter := f.(ResponseFilter)
		_, generic := f.(GenericRequestFilter)
		_, scoped := f.(APIKeyScoped)
		if reqFilter || respFilter || generic || scoped {
			return fmt.Errorf("filter chain: %T mixes CompositeFilter with a direct filter capability, forbidden", f)
		}
		if depth > maxCompositeDepth {
			return fmt.Errorf("filter chain: %T nests composites past the recursion limit of %d", f, maxCompositeDepth)
		}
		if err := validateCompositeDepth(cf.Filters(), depth+1); err != nil {
			return err
		}
	}
	return nil
}
