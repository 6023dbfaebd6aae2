package pricing

import "strings"

// CoverageAreas returns, in original order, the labels of comparison-matrix
// rows where at least one per-policy cell indicates coverage. A cell counts
// as coverage when, case-insensitively, it is neither empty, "not covered",
// nor "excluded".
func CoverageAreas(matrix []MatrixRow) []string {
	var areas []string
	for _, row := range matrix {
		for _, cell := range row.Policies {
			v := strings.ToLower(strings.TrimSpace(cell))
			if v != "" && v != "not covered" && v != "excluded" {
				areas = append(areas, row.CoverageArea)
				break
			}
		}
	}
	return areas
}
