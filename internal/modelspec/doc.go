// Package modelspec validates and canonicalizes a raw model description
// (formula, family, autocorrelation, priors, data) into the immutable
// ModelSpec consumed by program generation. All validation here is cheap and
// runs before any source generation or compilation is attempted.
package modelspec
