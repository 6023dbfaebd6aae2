package quote

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentSummariesFieldNames(t *testing.T) {
	raw := `{
		"client": {"name": "Acme Trucking LLC"},
		"policies": [{"id": "p1", "name": "Auto Liability"}],
		"summaries": {
			"coverageStrengths": ["A-rated carrier", "No exclusions on hired autos"],
			"considerations": ["Cargo limit below requested"]
		}
	}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.NotNil(t, doc.Summaries)
	require.Equal(t, []string{"A-rated carrier", "No exclusions on hired autos"}, doc.Summaries.Strengths)
	require.Equal(t, []string{"Cargo limit below requested"}, doc.Summaries.Considerations)

	out, err := json.Marshal(&doc)
	require.NoError(t, err)
	require.Contains(t, string(out), `"coverageStrengths"`)
}
