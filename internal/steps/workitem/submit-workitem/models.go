package submitworkitem

import (
	"context"
	"time"

	"cadio-client/internal/common/autocadio"
	"cadio-client/internal/common/logger"
)

// WorkItemAPI is the part of the Design Automation client this step needs.
type WorkItemAPI interface {
	SubmitWorkItem(ctx context.Context, item *autocadio.WorkItem) (*autocadio.WorkItem, error)
	GetWorkItemStatus(ctx context.Context, id string) (autocadio.ExecutionStatus, error)
	GetWorkItem(ctx context.Context, id string) (*autocadio.WorkItem, error)
}

type Input struct {
	Activity        *autocadio.Activity
	InputArguments  []autocadio.Argument
	OutputArguments []autocadio.Argument
}

type Output struct {
	// WorkItem is the re-fetched item; its Status is terminal.
	WorkItem *autocadio.WorkItem
	Polls    int
	Elapsed  time.Duration
}

type ServiceDependencies struct {
	Logger logger.Logger
	Client WorkItemAPI
}
