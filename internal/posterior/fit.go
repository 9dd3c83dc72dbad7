package posterior

import (
	"encoding/json"
	"fmt"

	"fitgrid/internal/compiler"
	"fitgrid/internal/modelspec"
	"fitgrid/internal/program"
)

// FitResult is the externally visible product of one pipeline run: the
// merged draws, the compiled model handle, the spec and build artifacts the
// fit was produced from, and cache bookkeeping. It is assembled once, at
// the end of the pipeline, and never mutated afterwards.
type FitResult struct {
	Draws     *Draws                 `json:"draws"`
	Model     *compiler.CompiledModel `json:"model"`
	Spec      *modelspec.ModelSpec   `json:"spec"`
	Artifacts *program.Artifacts     `json:"artifacts"`
	Excluded  []string               `json:"excluded,omitempty"`
	Criteria  map[string]float64     `json:"criteria,omitempty"`

	// File is the durable-storage key the fit was (or will be) persisted
	// under; CachePath is the resolved on-disk location. Both are
	// bookkeeping, not part of the fit's logical identity.
	File      string `json:"file,omitempty"`
	CachePath string `json:"cache_path,omitempty"`
}

// Encode serializes the fit for durable storage.
func (f *FitResult) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFit deserializes a persisted fit, rejecting payloads that do not
// hold a well-formed FitResult.
func DecodeFit(payload []byte) (*FitResult, error) {
	var f FitResult
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("decoding fit: %w", err)
	}
	if f.Draws == nil || f.Spec == nil || f.Model == nil {
		return nil, fmt.Errorf("decoding fit: payload is not a complete fit result")
	}
	return &f, nil
}
