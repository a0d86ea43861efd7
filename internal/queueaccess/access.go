package queueaccess

import (
	"context"
	"fmt"
	"time"

	"recap/internal/api"
	"recap/internal/ipc"
	"recap/internal/queue"
)

const offlineCancelReason = "cancelled by operator"

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, stages []string) ([]api.Job, error)
	Describe(ctx context.Context, id int64) (*api.Job, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Cancel(ctx context.Context, ids []int64) (int64, error)
	// Online reports whether a running daemon serves the calls.
	Online() bool
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewQueueService(store)}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Online() bool { return true }

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.QueueStats()
	if err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

func (a *ipcAccess) List(_ context.Context, stages []string) ([]api.Job, error) {
	resp, err := a.client.QueueList(stages)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (a *ipcAccess) Describe(_ context.Context, id int64) (*api.Job, error) {
	resp, err := a.client.Show(id)
	if err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (a *ipcAccess) ClearAll(_ context.Context) (int64, error) {
	return a.clear("all")
}

func (a *ipcAccess) ClearCompleted(_ context.Context) (int64, error) {
	return a.clear("completed")
}

func (a *ipcAccess) ClearFailed(_ context.Context) (int64, error) {
	return a.clear("failed")
}

func (a *ipcAccess) clear(scope string) (int64, error) {
	resp, err := a.client.QueueClear(scope)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Remove(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRemove(ids)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Cancel(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueCancel(ids)
	if err != nil {
		return 0, err
	}
	return resp.Cancelled, nil
}

type storeAccess struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *storeAccess) Online() bool { return false }

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, stages []string) ([]api.Job, error) {
	jobs, err := a.service.List(ctx, api.ParseStages(stages)...)
	if err != nil {
		return nil, err
	}
	return api.SortJobsNewestFirst(jobs), nil
}

func (a *storeAccess) Describe(ctx context.Context, id int64) (*api.Job, error) {
	job, err := a.service.Describe(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d not found", id)
	}
	return job, nil
}

func (a *storeAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *storeAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		removed, err := a.store.Remove(ctx, id)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}

// Cancel fails pending jobs. Without a daemon nothing is running, so jobs in
// other stages are left alone.
func (a *storeAccess) Cancel(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		job, err := a.store.GetByID(ctx, id)
		if err != nil {
			return count, err
		}
		if job == nil {
			return count, fmt.Errorf("job %d not found", id)
		}
		if job.Stage != queue.StagePending {
			continue
		}
		job.SetFailed(offlineCancelReason, time.Now().UTC())
		if err := a.store.Update(ctx, job); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
