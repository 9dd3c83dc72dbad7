package program

import (
	"fmt"
	"strings"

	"fitgrid/internal/modelspec"
)

// likelihoods maps family/link pairs to the sampling statement of the
// generated program.
var likelihoods = map[string]string{
	"gaussian/identity":    "Y ~ normal(mu, sigma);",
	"gaussian/log":         "Y ~ lognormal(mu, sigma);",
	"student/identity":     "Y ~ student_t(nu, mu, sigma);",
	"student/log":          "Y ~ student_t(nu, exp(mu), sigma);",
	"bernoulli/logit":      "Y ~ bernoulli_logit(mu);",
	"bernoulli/probit":     "Y ~ bernoulli(Phi(mu));",
	"binomial/logit":       "Y ~ bernoulli_logit(mu);",
	"binomial/probit":      "Y ~ bernoulli(Phi(mu));",
	"poisson/log":          "Y ~ poisson_log(mu);",
	"poisson/identity":     "Y ~ poisson(mu);",
	"negbinomial/log":      "Y ~ neg_binomial_2_log(mu, shape);",
}

// defaultPriors supplies the prior used for a parameter class when the
// caller did not set one.
var defaultPriors = map[string]string{
	"b":         "normal(0, 5)",
	"Intercept": "student_t(3, 0, 10)",
	"sd":        "student_t(3, 0, 10)",
	"sigma":     "student_t(3, 0, 10)",
	"shape":     "gamma(0.01, 0.01)",
	"nu":        "gamma(2, 0.1)",
	"ar":        "normal(0, 0.5)",
	"ma":        "normal(0, 0.5)",
}

// Source renders the program text for a normalized spec. The output is a
// pure function of the spec; blocks and statements are emitted in a fixed
// order so regeneration is byte-identical.
func Source(spec *modelspec.ModelSpec) (string, error) {
	lik, ok := likelihoods[spec.Family.Name+"/"+spec.Family.Link]
	if !ok {
		return "", fmt.Errorf("program source: no likelihood for family %q with link %q", spec.Family.Name, spec.Family.Link)
	}

	groups := groupMeta(spec)
	var b strings.Builder
	b.WriteString("// Program generated by fitgrid. Do not edit.\n")

	writeDataBlock(&b, spec, groups)
	writeParametersBlock(&b, spec, groups)
	writeTransformedBlock(&b, spec, groups)
	writeModelBlock(&b, spec, groups, lik)

	for _, frag := range spec.Fragments {
		b.WriteString("// user fragment\n")
		b.WriteString(strings.TrimRight(frag, "\n"))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func writeDataBlock(b *strings.Builder, spec *modelspec.ModelSpec, groups []GroupMeta) {
	f := spec.Formula
	b.WriteString("data {\n")
	b.WriteString("  int<lower=1> N;\n")
	if spec.Family.Discrete() {
		b.WriteString("  array[N] int Y;\n")
	} else {
		b.WriteString("  vector[N] Y;\n")
	}
	b.WriteString("  int<lower=0> K;\n")
	if len(f.Fixed) > 0 {
		if spec.SparseX {
			b.WriteString("  int<lower=0> Xnz;\n")
			b.WriteString("  vector[Xnz] Xv;\n")
			b.WriteString("  array[Xnz] int Xi;\n")
			b.WriteString("  array[N + 1] int Xp;\n")
		} else {
			b.WriteString("  matrix[N, K] X;\n")
		}
	}
	for _, g := range groups {
		i := g.Index
		fmt.Fprintf(b, "  int<lower=1> N_%d;\n", i)
		fmt.Fprintf(b, "  int<lower=1> M_%d;\n", i)
		fmt.Fprintf(b, "  array[N] int<lower=1> J_%d;\n", i)
		fmt.Fprintf(b, "  array[N] row_vector[M_%d] Z_%d;\n", i, i)
		if _, ok := spec.CovRanef[g.Group]; ok {
			fmt.Fprintf(b, "  matrix[N_%d, N_%d] cov_%d;\n", i, i, i)
		}
	}
	if spec.Autocor.P > 0 {
		b.WriteString("  int<lower=1> Kar;\n")
	}
	if spec.Autocor.Q > 0 {
		b.WriteString("  int<lower=1> Kma;\n")
	}
	if len(spec.Knots) > 0 {
		b.WriteString("  int<lower=1> Kn;\n")
		b.WriteString("  vector[Kn] knots;\n")
	}
	b.WriteString("}\n")
}

func writeParametersBlock(b *strings.Builder, spec *modelspec.ModelSpec, groups []GroupMeta) {
	f := spec.Formula
	b.WriteString("parameters {\n")
	if f.Intercept {
		b.WriteString("  real Intercept;\n")
	}
	if len(f.Fixed) > 0 {
		b.WriteString("  vector[K] b;\n")
	}
	for _, g := range groups {
		i := g.Index
		fmt.Fprintf(b, "  vector<lower=0>[M_%d] sd_%d;\n", i, i)
		fmt.Fprintf(b, "  matrix[M_%d, N_%d] z_%d;\n", i, i, i)
		if len(g.Coefs) > 1 {
			fmt.Fprintf(b, "  cholesky_factor_corr[M_%d] L_%d;\n", i, i)
		}
	}
	if spec.Autocor.P > 0 {
		b.WriteString("  vector<lower=-1,upper=1>[Kar] ar;\n")
	}
	if spec.Autocor.Q > 0 {
		b.WriteString("  vector<lower=-1,upper=1>[Kma] ma;\n")
	}
	if spec.Family.HasSigma() {
		b.WriteString("  real<lower=0> sigma;\n")
	}
	if spec.Family.HasShape() {
		b.WriteString("  real<lower=0> shape;\n")
	}
	if spec.Family.HasNu() {
		b.WriteString("  real<lower=1> nu;\n")
	}
	b.WriteString("}\n")
}

func writeTransformedBlock(b *strings.Builder, spec *modelspec.ModelSpec, groups []GroupMeta) {
	if len(groups) == 0 {
		return
	}
	b.WriteString("transformed parameters {\n")
	for _, g := range groups {
		i := g.Index
		fmt.Fprintf(b, "  matrix[N_%d, M_%d] r_%d;\n", i, i, i)
	}
	for _, g := range groups {
		i := g.Index
		if len(g.Coefs) > 1 {
			fmt.Fprintf(b, "  r_%d = (diag_pre_multiply(sd_%d, L_%d) * z_%d)';\n", i, i, i, i)
		} else {
			fmt.Fprintf(b, "  r_%d = (sd_%d[1] * z_%d)';\n", i, i, i)
		}
		if _, ok := spec.CovRanef[g.Group]; ok {
			fmt.Fprintf(b, "  r_%d = cholesky_decompose(cov_%d) * r_%d;\n", i, i, i)
		}
	}
	b.WriteString("}\n")
}

func writeModelBlock(b *strings.Builder, spec *modelspec.ModelSpec, groups []GroupMeta, lik string) {
	f := spec.Formula
	b.WriteString("model {\n")
	b.WriteString("  vector[N] mu = rep_vector(0.0, N);\n")
	if f.Intercept {
		b.WriteString("  mu += Intercept;\n")
	}
	if len(f.Fixed) > 0 {
		if spec.SparseX {
			b.WriteString("  mu += csr_matrix_times_vector(N, K, Xv, Xi, Xp, b);\n")
		} else {
			b.WriteString("  mu += X * b;\n")
		}
	}
	for _, g := range groups {
		i := g.Index
		fmt.Fprintf(b, "  for (n in 1:N) mu[n] += Z_%d[n] * r_%d[J_%d[n]]';\n", i, i, i)
	}
	if !spec.Autocor.None() {
		b.WriteString("  // residual autocorrelation adjustment\n")
		if spec.Autocor.P > 0 {
			b.WriteString("  for (n in 2:N) for (k in 1:min(Kar, n - 1)) mu[n] += ar[k] * (Y[n - k] - mu[n - k]);\n")
		}
		if spec.Autocor.Q > 0 {
			b.WriteString("  { vector[N] err = to_vector(Y) - mu;\n")
			b.WriteString("    for (n in 2:N) for (k in 1:min(Kma, n - 1)) mu[n] += ma[k] * err[n - k]; }\n")
		}
	}

	writePriorStatements(b, spec, groups)
	b.WriteString("  " + lik + "\n")
	b.WriteString("}\n")
}

func writePriorStatements(b *strings.Builder, spec *modelspec.ModelSpec, groups []GroupMeta) {
	f := spec.Formula
	if f.Intercept {
		fmt.Fprintf(b, "  Intercept ~ %s;\n", priorFor(spec, "Intercept", "", ""))
	}
	for k, coef := range f.Fixed {
		fmt.Fprintf(b, "  b[%d] ~ %s;\n", k+1, priorFor(spec, "b", coef, ""))
	}
	for _, g := range groups {
		i := g.Index
		for mi, coef := range g.Coefs {
			fmt.Fprintf(b, "  sd_%d[%d] ~ %s;\n", i, mi+1, priorFor(spec, "sd", coef, g.Group))
		}
		fmt.Fprintf(b, "  to_vector(z_%d) ~ std_normal();\n", i)
		if len(g.Coefs) > 1 {
			fmt.Fprintf(b, "  L_%d ~ lkj_corr_cholesky(1);\n", i)
		}
	}
	if spec.Autocor.P > 0 {
		fmt.Fprintf(b, "  ar ~ %s;\n", priorFor(spec, "ar", "", ""))
	}
	if spec.Autocor.Q > 0 {
		fmt.Fprintf(b, "  ma ~ %s;\n", priorFor(spec, "ma", "", ""))
	}
	if spec.Family.HasSigma() {
		fmt.Fprintf(b, "  sigma ~ %s;\n", priorFor(spec, "sigma", "", ""))
	}
	if spec.Family.HasShape() {
		fmt.Fprintf(b, "  shape ~ %s;\n", priorFor(spec, "shape", "", ""))
	}
	if spec.Family.HasNu() {
		fmt.Fprintf(b, "  nu ~ %s;\n", priorFor(spec, "nu", "", ""))
	}
}

// priorFor resolves the most specific user prior for a parameter, falling
// back from coef-level to class-level to the built-in default.
func priorFor(spec *modelspec.ModelSpec, class, coef, group string) string {
	var classLevel string
	for _, p := range spec.Priors {
		if p.Class != class {
			continue
		}
		if p.Coef == coef && p.Group == group {
			return p.Spec
		}
		if p.Coef == "" && p.Group == "" {
			classLevel = p.Spec
		}
	}
	if classLevel != "" {
		return classLevel
	}
	return defaultPriors[class]
}
