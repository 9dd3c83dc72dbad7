package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseDrawsCSV reads one chain's draw output: '#'-prefixed comment lines,
// then a header row of column names, then one numeric row per retained
// iteration. Columns whose name ends in "__" are engine diagnostics; the
// rest are model parameters.
func parseDrawsCSV(r io.Reader) (params []string, draws [][]float64, diags map[string][]float64, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var header []string
	var diagIdx, paramIdx []int
	diags = make(map[string][]float64)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if header == nil {
			header = fields
			for i, name := range header {
				if strings.HasSuffix(name, "__") {
					diagIdx = append(diagIdx, i)
				} else {
					paramIdx = append(paramIdx, i)
					params = append(params, name)
				}
			}
			continue
		}
		if len(fields) != len(header) {
			return nil, nil, nil, fmt.Errorf("draw row has %d fields, expected %d", len(fields), len(header))
		}
		row := make([]float64, len(header))
		for i, f := range fields {
			v, perr := strconv.ParseFloat(f, 64)
			if perr != nil {
				return nil, nil, nil, fmt.Errorf("parsing draw value %q in column %q: %w", f, header[i], perr)
			}
			row[i] = v
		}
		draw := make([]float64, len(paramIdx))
		for k, i := range paramIdx {
			draw[k] = row[i]
		}
		draws = append(draws, draw)
		for _, i := range diagIdx {
			diags[header[i]] = append(diags[header[i]], row[i])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("reading draws: %w", err)
	}
	if header == nil {
		return nil, nil, nil, fmt.Errorf("draw output contains no header row")
	}
	if len(draws) == 0 {
		return nil, nil, nil, fmt.Errorf("draw output contains no draws")
	}
	return params, draws, diags, nil
}
