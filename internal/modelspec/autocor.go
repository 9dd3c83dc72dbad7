package modelspec

import (
	"fmt"
	"strconv"
	"strings"
)

// Autocor is a canonical residual autocorrelation structure. The zero value
// means no autocorrelation.
type Autocor struct {
	P int `json:"p"` // autoregressive order
	Q int `json:"q"` // moving-average order
}

// None reports whether no autocorrelation structure was requested.
func (a Autocor) None() bool {
	return a.P == 0 && a.Q == 0
}

// String renders the structure in its canonical declaration form.
func (a Autocor) String() string {
	switch {
	case a.None():
		return ""
	case a.Q == 0:
		return fmt.Sprintf("ar(%d)", a.P)
	case a.P == 0:
		return fmt.Sprintf("ma(%d)", a.Q)
	}
	return fmt.Sprintf("arma(%d,%d)", a.P, a.Q)
}

// ParseAutocor parses an autocorrelation declaration: "", "ar(p)", "ma(q)"
// or "arma(p,q)" with positive integer orders.
func ParseAutocor(raw string) (Autocor, error) {
	compact := strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	if compact == "" {
		return Autocor{}, nil
	}
	open := strings.Index(compact, "(")
	if open < 0 || !strings.HasSuffix(compact, ")") {
		return Autocor{}, specErrorf("autocor", "unrecognized structure %q", raw)
	}
	kind := compact[:open]
	args := strings.Split(compact[open+1:len(compact)-1], ",")

	orders := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return Autocor{}, specErrorf("autocor", "order %q in %q must be a positive integer", arg, raw)
		}
		orders = append(orders, n)
	}

	switch {
	case kind == "ar" && len(orders) == 1:
		return Autocor{P: orders[0]}, nil
	case kind == "ma" && len(orders) == 1:
		return Autocor{Q: orders[0]}, nil
	case kind == "arma" && len(orders) == 2:
		return Autocor{P: orders[0], Q: orders[1]}, nil
	}
	return Autocor{}, specErrorf("autocor", "unrecognized structure %q", raw)
}
