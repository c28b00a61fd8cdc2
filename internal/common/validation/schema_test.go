package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["id", "engine"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "engine": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+$"}
  }
}`

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		valid    bool
		errField string
	}{
		{"valid", `{"id":"TestImport","engine":"22.0"}`, true, ""},
		{"missing engine", `{"id":"TestImport"}`, false, "(root)"},
		{"bad engine", `{"id":"TestImport","engine":"latest"}`, false, "engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateDocument([]byte(testSchema), []byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.errField != "" {
				assert.True(t, result.HasErrors(tt.errField), result.GetErrorMessages())
			}
		})
	}
}

func TestValidateDocument_Unparseable(t *testing.T) {
	_, err := ValidateDocument([]byte(testSchema), []byte(`{"id":`))
	assert.Error(t, err)
}

func TestValidateActivityID(t *testing.T) {
	assert.NoError(t, ValidateActivityID("TestImport"))
	assert.NoError(t, ValidateActivityID("Import_v2"))
	assert.Error(t, ValidateActivityID(""))
	assert.Error(t, ValidateActivityID("2fast"))
	assert.Error(t, ValidateActivityID("has space"))
	assert.Error(t, ValidateActivityID("O'Brien"))
}
