package authz

import (
	"fmt"
	"strings"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

type Config struct {
	// UseOidFilter restricts results to documents visible to the caller's
	// object id.
	UseOidFilter bool

	// UseGroupsFilter restricts results to documents visible to any of the
	// caller's groups.
	UseGroupsFilter bool
}

// FilterBuilder composes the search filter predicate from request options
// and caller claims. Produces OData syntax understood by the search index.
type FilterBuilder struct {
	cfg Config
}

func NewFilterBuilder(cfg Config) *FilterBuilder {
	return &FilterBuilder{cfg: cfg}
}

// Build returns the filter string, or empty when nothing restricts the
// query. Category exclusion and security filters are conjoined.
func (b *FilterBuilder) Build(opts domain.Options, claims domain.AuthClaims) string {
	var parts []string

	if opts.ExcludeCategory != "" {
		parts = append(parts, fmt.Sprintf("category ne '%s'", escapeODataString(opts.ExcludeCategory)))
	}

	if security := b.securityFilter(claims); security != "" {
		parts = append(parts, security)
	}

	return strings.Join(parts, " and ")
}

func (b *FilterBuilder) securityFilter(claims domain.AuthClaims) string {
	var clauses []string

	if b.cfg.UseOidFilter {
		if oid := stringClaim(claims, "oid"); oid != "" {
			clauses = append(clauses, fmt.Sprintf("oids/any(g:search.in(g, '%s'))", escapeODataString(oid)))
		}
	}
	if b.cfg.UseGroupsFilter {
		if groups := stringSliceClaim(claims, "groups"); len(groups) > 0 {
			escaped := make([]string, 0, len(groups))
			for _, g := range groups {
				escaped = append(escaped, escapeODataString(g))
			}
			clauses = append(clauses, fmt.Sprintf("groups/any(g:search.in(g, '%s'))", strings.Join(escaped, ", ")))
		}
	}

	if len(clauses) == 0 {
		return ""
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " or ") + ")"
}

func stringClaim(claims domain.AuthClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}

func stringSliceClaim(claims domain.AuthClaims, name string) []string {
	switch v := claims[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// escapeODataString doubles single quotes per OData string literal rules.
func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
