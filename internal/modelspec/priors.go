package modelspec

// Prior attaches a distribution specification to one parameter class, e.g.
// {Class: "b", Coef: "x", Spec: "normal(0, 1)"}. The Spec string is passed
// through to the generated program verbatim; only the target is validated.
type Prior struct {
	Class string `json:"class"`
	Coef  string `json:"coef,omitempty"`
	Group string `json:"group,omitempty"`
	Spec  string `json:"spec"`
}

func (p Prior) target() string {
	s := p.Class
	if p.Group != "" {
		s += "_" + p.Group
	}
	if p.Coef != "" {
		s += "__" + p.Coef
	}
	return s
}

// validatePriors checks every prior against the term tree, failing on priors
// that reference parameters the model does not contain.
func validatePriors(f Formula, fam Family, ac Autocor, priors []Prior) error {
	seen := make(map[string]struct{}, len(priors))
	for _, p := range priors {
		if p.Spec == "" {
			return specErrorf("prior", "prior on class %q has an empty specification", p.Class)
		}
		if _, dup := seen[p.target()]; dup {
			return specErrorf("prior", "duplicate prior on %q", p.target())
		}
		seen[p.target()] = struct{}{}

		if err := validatePriorTarget(f, fam, ac, p); err != nil {
			return err
		}
	}
	return nil
}

func validatePriorTarget(f Formula, fam Family, ac Autocor, p Prior) error {
	switch p.Class {
	case "b":
		if p.Group != "" {
			return specErrorf("prior", "class b does not take a group (got %q)", p.Group)
		}
		if p.Coef == "" {
			return nil // applies to all population-level effects
		}
		for _, coef := range f.Fixed {
			if coef == p.Coef {
				return nil
			}
		}
		return specErrorf("prior", "prior on b__%s references a coefficient that is not in the formula", p.Coef)
	case "Intercept":
		if !f.Intercept {
			return specErrorf("prior", "prior on Intercept but the formula removes the intercept")
		}
		return nil
	case "sd":
		return validateSdPrior(f, p)
	case "sigma":
		if !fam.HasSigma() {
			return specErrorf("prior", "family %q has no sigma parameter", fam.Name)
		}
		return nil
	case "shape":
		if !fam.HasShape() {
			return specErrorf("prior", "family %q has no shape parameter", fam.Name)
		}
		return nil
	case "nu":
		if !fam.HasNu() {
			return specErrorf("prior", "family %q has no nu parameter", fam.Name)
		}
		return nil
	case "ar":
		if ac.P == 0 {
			return specErrorf("prior", "prior on ar but the model has no autoregressive terms")
		}
		return nil
	case "ma":
		if ac.Q == 0 {
			return specErrorf("prior", "prior on ma but the model has no moving-average terms")
		}
		return nil
	}
	return specErrorf("prior", "unknown parameter class %q", p.Class)
}

func validateSdPrior(f Formula, p Prior) error {
	if p.Group == "" {
		return nil // applies to all group-level standard deviations
	}
	for _, gt := range f.Groups {
		if gt.Group != p.Group {
			continue
		}
		if p.Coef == "" {
			return nil
		}
		if p.Coef == "Intercept" && gt.Intercept {
			return nil
		}
		for _, coef := range gt.Coefs {
			if coef == p.Coef {
				return nil
			}
		}
		return specErrorf("prior", "prior on %s references coefficient %q not present in group term for %q",
			p.target(), p.Coef, p.Group)
	}
	return specErrorf("prior", "prior on %s references grouping factor %q that is not in the formula", p.target(), p.Group)
}
