// pkg/activitydef/schema.go
package activitydef

import (
	_ "embed"

	"cadio-client/internal/common/autocadio"
)

//go:embed schema.json
var Schema []byte

// Definition is the desired state of a remote activity.
type Definition struct {
	ID                    string      `json:"id"`
	Description           string      `json:"description,omitempty"`
	Script                string      `json:"script"`
	RequiredEngineVersion string      `json:"requiredEngineVersion"`
	InputParameters       []Parameter `json:"inputParameters"`
	OutputParameters      []Parameter `json:"outputParameters"`
}

type Parameter struct {
	Name          string `json:"name"`
	LocalFileName string `json:"localFileName"`
	Optional      bool   `json:"optional,omitempty"`
}

// Apply overwrites the definition-owned fields of a, leaving Id and server metadata alone.
func (d *Definition) Apply(a *autocadio.Activity) {
	a.Instruction = autocadio.Instruction{Script: d.Script}
	a.Parameters = autocadio.Parameters{
		InputParameters:  toParameters(d.InputParameters),
		OutputParameters: toParameters(d.OutputParameters),
	}
	a.RequiredEngineVersion = d.RequiredEngineVersion
}

// Matches reports whether a already carries this definition.
func (d *Definition) Matches(a *autocadio.Activity) bool {
	if a.Instruction.Script != d.Script || a.RequiredEngineVersion != d.RequiredEngineVersion {
		return false
	}
	return sameParameters(a.Parameters.InputParameters, d.InputParameters) &&
		sameParameters(a.Parameters.OutputParameters, d.OutputParameters)
}

func toParameters(in []Parameter) []autocadio.Parameter {
	out := make([]autocadio.Parameter, len(in))
	for i, p := range in {
		out[i] = autocadio.Parameter{Name: p.Name, LocalFileName: p.LocalFileName, Optional: p.Optional}
	}
	return out
}

func sameParameters(remote []autocadio.Parameter, local []Parameter) bool {
	if len(remote) != len(local) {
		return false
	}
	for i := range remote {
		if remote[i].Name != local[i].Name || remote[i].LocalFileName != local[i].LocalFileName || remote[i].Optional != local[i].Optional {
			return false
		}
	}
	return true
}
