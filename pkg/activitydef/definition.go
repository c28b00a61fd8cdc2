// pkg/activitydef/definition.go
package activitydef

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cadio-client/internal/common/errors"
	"cadio-client/internal/common/validation"
)

const (
	DefaultID            = "TestImport"
	DefaultEngineVersion = "22.0"
	ResultParameter      = "Result"
)

// DefaultScript imports the CATIA part into the host drawing and saves the result.
const DefaultScript = "_import\n\"Aero_Punch1.CATPart\"\n_.saveas\n2018\nSolidAfterImport.dwg\n_.quit\n"

// Default returns the compiled-in import activity.
func Default() *Definition {
	return &Definition{
		ID:                    DefaultID,
		Description:           "Imports a CATIA part into a DWG template",
		Script:                DefaultScript,
		RequiredEngineVersion: DefaultEngineVersion,
		InputParameters: []Parameter{
			{Name: "HostDwg", LocalFileName: "$(HostDwg)"},
			{Name: "CatImport", LocalFileName: "Aero_Punch1.CATPart"},
		},
		OutputParameters: []Parameter{
			{Name: ResultParameter, LocalFileName: "SolidAfterImport.dwg"},
		},
	}
}

// Load reads a definition file. An empty path returns Default.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewDefinitionInvalidError(fmt.Sprintf("failed to read %s: %v", path, err))
	}
	return Parse(data)
}

// Parse validates data against Schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	result, err := validation.ValidateDocument(Schema, data)
	if err != nil {
		return nil, errors.NewDefinitionInvalidError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewDefinitionInvalidError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, errors.NewDefinitionInvalidError(err.Error())
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the rules the schema cannot express.
func (d *Definition) Validate() error {
	if err := validation.ValidateActivityID(d.ID); err != nil {
		return errors.NewDefinitionInvalidError(err.Error())
	}
	seen := make(map[string]bool)
	for _, p := range append(append([]Parameter{}, d.InputParameters...), d.OutputParameters...) {
		if seen[p.Name] {
			return errors.NewDefinitionInvalidError(fmt.Sprintf("parameter %q is declared more than once", p.Name))
		}
		seen[p.Name] = true
	}
	return nil
}
