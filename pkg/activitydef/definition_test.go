package activitydef

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/errors"
)

func TestDefault(t *testing.T) {
	def := Default()

	require.NoError(t, def.Validate())
	assert.Equal(t, "TestImport", def.ID)
	assert.Equal(t, "22.0", def.RequiredEngineVersion)
	assert.Equal(t, "HostDwg", def.InputParameters[0].Name)
	assert.Equal(t, "CatImport", def.InputParameters[1].Name)
	assert.Equal(t, "Result", def.OutputParameters[0].Name)
}

func TestDefault_PassesSchema(t *testing.T) {
	data, err := json.Marshal(Default())
	require.NoError(t, err)

	def, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), def)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing script", `{"id":"A","requiredEngineVersion":"22.0","inputParameters":[{"name":"a","localFileName":"a"}],"outputParameters":[{"name":"r","localFileName":"r"}]}`},
		{"bad engine", `{"id":"A","script":"x","requiredEngineVersion":"new","inputParameters":[{"name":"a","localFileName":"a"}],"outputParameters":[{"name":"r","localFileName":"r"}]}`},
		{"no outputs", `{"id":"A","script":"x","requiredEngineVersion":"22.0","inputParameters":[{"name":"a","localFileName":"a"}],"outputParameters":[]}`},
		{"duplicate name", `{"id":"A","script":"x","requiredEngineVersion":"22.0","inputParameters":[{"name":"a","localFileName":"a"}],"outputParameters":[{"name":"a","localFileName":"r"}]}`},
		{"unknown field", `{"id":"A","script":"x","engine":"22.0","requiredEngineVersion":"22.0","inputParameters":[{"name":"a","localFileName":"a"}],"outputParameters":[{"name":"r","localFileName":"r"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.True(t, errors.Is(err, errors.ErrCodeDefinitionInvalid), err)
		})
	}
}

func TestLoad(t *testing.T) {
	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultID, def.ID)

	path := filepath.Join(t.TempDir(), "activity.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"Custom","script":"_.quit\n","requiredEngineVersion":"23.1","inputParameters":[{"name":"HostDwg","localFileName":"$(HostDwg)"}],"outputParameters":[{"name":"Result","localFileName":"out.dwg"}]}`), 0o644))
	def, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Custom", def.ID)
	assert.Equal(t, "23.1", def.RequiredEngineVersion)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, errors.ErrCodeDefinitionInvalid))
}

func TestApplyAndMatches(t *testing.T) {
	def := Default()
	activity := &autocadio.Activity{Id: def.ID, Version: 4}
	assert.False(t, def.Matches(activity))

	def.Apply(activity)

	assert.True(t, def.Matches(activity))
	assert.Equal(t, 4, activity.Version)
	assert.Equal(t, DefaultScript, activity.Instruction.Script)

	activity.Parameters.InputParameters[1].LocalFileName = "other.CATPart"
	assert.False(t, def.Matches(activity))
}
