package downloadresults

import (
	"net/http"

	"cadio-client/internal/common/logger"
)

// Doer sends plain HTTP requests. Presigned and service-provided URLs carry their own authorization.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ServiceDependencies struct {
	Logger logger.Logger
	Client Doer
}
