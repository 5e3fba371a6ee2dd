// Package manager implements the Instance Manager (§4.H): the state
// machine and concurrent registry governing every instance's lifecycle,
// backed by either an in-process or a subprocess-isolated execution
// backend.
package manager

import (
	"context"

	"github.com/oriys/nova/internal/domain"
)

// Manager is the capability surface the rest of the system (CLI,
// daemon, HTTP boundary external to this module) drives instances
// through. Both backends implement it identically from the caller's
// perspective; only the underlying execution model differs.
type Manager interface {
	Create(ctx context.Context, req domain.CreateRequest) (*domain.Instance, error)
	Delete(ctx context.Context, instanceID string) error
	Start(ctx context.Context, instanceID string) error
	Stop(ctx context.Context, instanceID string) error
	Restart(ctx context.Context, instanceID string) error
	Update(ctx context.Context, instanceID string, patch map[string]interface{}) error

	GetInstance(instanceID string) (*domain.Instance, error)
	GetConfig(instanceID string) (*domain.Instance, error)
	ListInstances() []string
	GetAllInstances() []*domain.Instance
	HasInstance(instanceID string) bool
	GetInstanceCount() int
	GetInstanceStatistics(instanceID string) (map[string]interface{}, error)
	GetLastFrame(instanceID string) ([]byte, error)

	LoadPersistentInstances(ctx context.Context) error
	CheckAndHandleRetryLimits(ctx context.Context) error

	Shutdown() error
}

// BatchResult pairs an instance id with the error (nil on success) from
// a batch operation. Batch operations make no ordering promise across
// ids (§5).
type BatchResult struct {
	InstanceID string
	Err        error
}

// runBatch fans a function out over ids concurrently and collects
// results; it is shared by both backends for batch-shaped callers
// (e.g. "start every instance in a group").
func runBatch(ids []string, fn func(id string) error) []BatchResult {
	results := make([]BatchResult, len(ids))
	done := make(chan struct{}, len(ids))
	for i, id := range ids {
		i, id := i, id
		go func() {
			results[i] = BatchResult{InstanceID: id, Err: fn(id)}
			done <- struct{}{}
		}()
	}
	for range ids {
		<-done
	}
	return results
}
