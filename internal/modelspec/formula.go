package modelspec

import (
	"strings"
)

// GroupTerm is one grouping term of a formula, e.g. `(1 + x | subject)`.
type GroupTerm struct {
	Intercept bool     `json:"intercept"`
	Coefs     []string `json:"coefs,omitempty"`
	Group     string   `json:"group"`
}

// Formula is the parsed term tree of a model formula such as
// `y ~ x1 + x2 + (1 | g)`.
type Formula struct {
	Raw       string      `json:"raw"`
	Response  string      `json:"response"`
	Intercept bool        `json:"intercept"`
	Fixed     []string    `json:"fixed,omitempty"`
	Groups    []GroupTerm `json:"groups,omitempty"`
}

// Vars returns every data column the formula references: response, fixed
// effects, group-level covariates, and grouping factors, deduplicated in
// first-reference order.
func (f Formula) Vars() []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	add(f.Response)
	for _, v := range f.Fixed {
		add(v)
	}
	for _, g := range f.Groups {
		for _, v := range g.Coefs {
			add(v)
		}
		add(g.Group)
	}
	return out
}

// ParseFormula parses a formula string into its term tree. Supported terms
// on the right-hand side: an explicit `1` or `0` intercept marker, plain
// covariate names, and grouping terms of the form `(terms | group)`.
func ParseFormula(raw string) (Formula, error) {
	parts := strings.Split(raw, "~")
	if len(parts) != 2 {
		return Formula{}, specErrorf("formula", "%q must contain exactly one '~'", raw)
	}
	resp := strings.TrimSpace(parts[0])
	if !isIdent(resp) {
		return Formula{}, specErrorf("formula", "invalid response variable %q", resp)
	}

	f := Formula{Raw: raw, Response: resp, Intercept: true}
	terms, err := splitTerms(parts[1])
	if err != nil {
		return Formula{}, err
	}
	if len(terms) == 0 {
		return Formula{}, specErrorf("formula", "%q has an empty right-hand side", raw)
	}

	for _, term := range terms {
		switch {
		case term == "1":
			f.Intercept = true
		case term == "0" || term == "-1":
			f.Intercept = false
		case strings.HasPrefix(term, "("):
			gt, err := parseGroupTerm(term)
			if err != nil {
				return Formula{}, err
			}
			f.Groups = append(f.Groups, gt)
		case strings.Contains(term, ":") || strings.Contains(term, "*"):
			return Formula{}, specErrorf("formula", "interaction term %q is not supported; add a product column to the data instead", term)
		case isIdent(term):
			f.Fixed = append(f.Fixed, term)
		default:
			return Formula{}, specErrorf("formula", "unrecognized term %q", term)
		}
	}
	return f, nil
}

// splitTerms splits the right-hand side on '+' at paren depth zero.
func splitTerms(rhs string) ([]string, error) {
	var terms []string
	depth := 0
	var cur strings.Builder
	for _, r := range rhs {
		switch r {
		case '(':
			depth++
			cur.WriteRune(r)
		case ')':
			depth--
			if depth < 0 {
				return nil, specErrorf("formula", "unbalanced parentheses in %q", rhs)
			}
			cur.WriteRune(r)
		case '+':
			if depth == 0 {
				terms = appendTerm(terms, cur.String())
				cur.Reset()
				continue
			}
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, specErrorf("formula", "unbalanced parentheses in %q", rhs)
	}
	terms = appendTerm(terms, cur.String())
	return terms, nil
}

func appendTerm(terms []string, term string) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return terms
	}
	return append(terms, term)
}

// parseGroupTerm parses a `(terms | group)` grouping term.
func parseGroupTerm(term string) (GroupTerm, error) {
	inner := strings.TrimSpace(term)
	if !strings.HasPrefix(inner, "(") || !strings.HasSuffix(inner, ")") {
		return GroupTerm{}, specErrorf("formula", "malformed group term %q", term)
	}
	inner = inner[1 : len(inner)-1]
	sides := strings.Split(inner, "|")
	if len(sides) != 2 {
		return GroupTerm{}, specErrorf("formula", "group term %q must contain exactly one '|'", term)
	}
	group := strings.TrimSpace(sides[1])
	if !isIdent(group) {
		return GroupTerm{}, specErrorf("formula", "invalid grouping factor %q", group)
	}

	gt := GroupTerm{Intercept: true, Group: group}
	for _, sub := range strings.Split(sides[0], "+") {
		sub = strings.TrimSpace(sub)
		switch {
		case sub == "" || sub == "1":
			gt.Intercept = true
		case sub == "0" || sub == "-1":
			gt.Intercept = false
		case isIdent(sub):
			gt.Coefs = append(gt.Coefs, sub)
		default:
			return GroupTerm{}, specErrorf("formula", "unrecognized term %q in group term %q", sub, term)
		}
	}
	if !gt.Intercept && len(gt.Coefs) == 0 {
		return GroupTerm{}, specErrorf("formula", "group term %q declares no effects", term)
	}
	return gt, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
