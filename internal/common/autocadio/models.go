package autocadio

import "time"

// ExecutionStatus is the state of a work item as reported by the service.
type ExecutionStatus string

const (
	StatusPending              ExecutionStatus = "Pending"
	StatusInProgress           ExecutionStatus = "InProgress"
	StatusSucceeded            ExecutionStatus = "Succeeded"
	StatusFailed               ExecutionStatus = "Failed"
	StatusFailedDownload       ExecutionStatus = "FailedDownload"
	StatusFailedInstructions   ExecutionStatus = "FailedInstructions"
	StatusFailedUpload         ExecutionStatus = "FailedUpload"
	StatusFailedUploadOptional ExecutionStatus = "FailedUploadOptional"
	StatusCancelled            ExecutionStatus = "Cancelled"
	StatusTimedOut             ExecutionStatus = "TimedOut"
)

// IsTerminal reports whether polling can stop. Unknown values are terminal.
func (s ExecutionStatus) IsTerminal() bool {
	return s != StatusPending && s != StatusInProgress
}

func (s ExecutionStatus) IsSuccess() bool {
	return s == StatusSucceeded
}

// StorageProvider selects how the service transfers an argument's resource.
type StorageProvider string

const (
	StorageGeneric StorageProvider = "Generic"
	StorageA360    StorageProvider = "A360"
)

type Instruction struct {
	Script string `json:"Script"`
}

// Parameter binds a logical name to the file name the script sees.
type Parameter struct {
	Name          string `json:"Name"`
	LocalFileName string `json:"LocalFileName"`
	Optional      bool   `json:"Optional,omitempty"`
}

type Parameters struct {
	InputParameters  []Parameter `json:"InputParameters"`
	OutputParameters []Parameter `json:"OutputParameters"`
}

// Activity is a named job template on the service.
type Activity struct {
	Id                    string      `json:"Id"`
	Instruction           Instruction `json:"Instruction"`
	Parameters            Parameters  `json:"Parameters"`
	RequiredEngineVersion string      `json:"RequiredEngineVersion"`
	Version               int         `json:"Version,omitempty"`
	Timestamp             string      `json:"Timestamp,omitempty"`
}

// HasInputParameter reports whether name is a declared input parameter.
func (a *Activity) HasInputParameter(name string) bool {
	return hasParameter(a.Parameters.InputParameters, name)
}

// HasOutputParameter reports whether name is a declared output parameter.
func (a *Activity) HasOutputParameter(name string) bool {
	return hasParameter(a.Parameters.OutputParameters, name)
}

func hasParameter(params []Parameter, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// ActivityVersion is one entry of an activity's version history.
type ActivityVersion struct {
	Version   int       `json:"Version"`
	Timestamp time.Time `json:"Timestamp"`
}

// Argument binds a work item parameter to a storage resource.
// A nil Resource on an output asks the service to provide storage.
type Argument struct {
	Name            string          `json:"Name"`
	Resource        *string         `json:"Resource"`
	StorageProvider StorageProvider `json:"StorageProvider"`
	HttpVerb        string          `json:"HttpVerb,omitempty"`
	ResourceKind    string          `json:"ResourceKind,omitempty"`
}

// ResourceURL returns the resource or "" when it is unset.
func (a Argument) ResourceURL() string {
	if a.Resource == nil {
		return ""
	}
	return *a.Resource
}

type Arguments struct {
	InputArguments  []Argument `json:"InputArguments"`
	OutputArguments []Argument `json:"OutputArguments"`
}

type StatusDetails struct {
	Report string `json:"Report"`
}

// WorkItem is one execution of an Activity. Id is assigned by the service.
type WorkItem struct {
	Id            string          `json:"Id"`
	ActivityId    string          `json:"ActivityId"`
	Arguments     Arguments       `json:"Arguments"`
	Status        ExecutionStatus `json:"Status,omitempty"`
	StatusDetails *StatusDetails  `json:"StatusDetails,omitempty"`
	Timestamp     string          `json:"Timestamp,omitempty"`
}

// ReportURL returns the status report location, or "" if the service has not set one.
func (w *WorkItem) ReportURL() string {
	if w.StatusDetails == nil {
		return ""
	}
	return w.StatusDetails.Report
}

// OutputURL returns the resource of the named output argument.
func (w *WorkItem) OutputURL(name string) string {
	for _, arg := range w.Arguments.OutputArguments {
		if arg.Name == name {
			return arg.ResourceURL()
		}
	}
	return ""
}

// StringPtr is a helper for Argument.Resource literals.
func StringPtr(s string) *string {
	return &s
}
