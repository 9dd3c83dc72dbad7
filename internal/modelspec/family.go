package modelspec

import "strings"

// Family is a canonical response distribution with its link function.
type Family struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// links maps each supported family to its admissible link functions; the
// first entry is the default link.
var links = map[string][]string{
	"gaussian":    {"identity", "log"},
	"student":     {"identity", "log"},
	"bernoulli":   {"logit", "probit"},
	"binomial":    {"logit", "probit"},
	"poisson":     {"log", "identity"},
	"negbinomial": {"log"},
}

// CanonicalFamily resolves a family name and optional link into canonical
// form, applying the family's default link when none is given.
func CanonicalFamily(name, link string) (Family, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	link = strings.ToLower(strings.TrimSpace(link))
	admissible, ok := links[name]
	if !ok {
		return Family{}, specErrorf("family", "unknown family %q", name)
	}
	if link == "" {
		return Family{Name: name, Link: admissible[0]}, nil
	}
	for _, l := range admissible {
		if l == link {
			return Family{Name: name, Link: link}, nil
		}
	}
	return Family{}, specErrorf("family", "link %q is not admissible for family %q", link, name)
}

// HasSigma reports whether the family carries a residual scale parameter.
func (f Family) HasSigma() bool {
	return f.Name == "gaussian" || f.Name == "student"
}

// HasShape reports whether the family carries a shape parameter.
func (f Family) HasShape() bool {
	return f.Name == "negbinomial"
}

// HasNu reports whether the family carries a degrees-of-freedom parameter.
func (f Family) HasNu() bool {
	return f.Name == "student"
}

// Discrete reports whether the response must hold integer-valued outcomes.
func (f Family) Discrete() bool {
	switch f.Name {
	case "bernoulli", "binomial", "poisson", "negbinomial":
		return true
	}
	return false
}
