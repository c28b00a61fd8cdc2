package ensureactivity

import (
	"context"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/logger"
	"cadio-client/pkg/activitydef"
)

// ActivityAPI is the part of the Design Automation client this step needs.
type ActivityAPI interface {
	GetActivity(ctx context.Context, id string) (*autocadio.Activity, bool, error)
	CreateActivity(ctx context.Context, activity *autocadio.Activity) (*autocadio.Activity, error)
	UpdateActivity(ctx context.Context, activity *autocadio.Activity) error
}

type Input struct {
	Definition *activitydef.Definition
}

type Output struct {
	Activity *autocadio.Activity
	Created  bool
	Updated  bool
}

type ServiceDependencies struct {
	Logger logger.Logger
	Client ActivityAPI
}
