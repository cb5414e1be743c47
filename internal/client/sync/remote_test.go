package sync

import (
	"context"
	gosync "sync"

	"github.com/iudanet/tasksync/internal/crdt"
	"github.com/iudanet/tasksync/pkg/api"
)

// fakeRemote удаленный журнал в памяти с правилом принятия сервера:
// операция принимается, если у сущности нет часов или часы операции доминируют.
type fakeRemote struct {
	clocks    map[api.EntityRef]crdt.VectorClock
	seen      map[string]bool
	intercept func(op api.Op) *api.OpResult
	uploaded  []string
	ops       []api.RemoteOp
	mu        gosync.Mutex
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		clocks: make(map[api.EntityRef]crdt.VectorClock),
		seen:   make(map[string]bool),
	}
}

func (r *fakeRemote) setIntercept(fn func(op api.Op) *api.OpResult) {
	r.mu.Lock()
	r.intercept = fn
	r.mu.Unlock()
}

func (r *fakeRemote) uploadedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.uploaded...)
}

func (r *fakeRemote) upload(ctx context.Context, req api.UploadOpsRequest) (*api.UploadOpsResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp := &api.UploadOpsResponse{}
	for _, op := range req.Ops {
		r.uploaded = append(r.uploaded, op.ID)

		if r.intercept != nil {
			if res := r.intercept(op); res != nil {
				resp.Results = append(resp.Results, *res)
				continue
			}
		}
		if r.seen[op.ID] {
			resp.Results = append(resp.Results, api.OpResult{OpID: op.ID, Accepted: true})
			continue
		}

		clock := crdt.VectorClock(op.Clock)
		existing, ok := r.clocks[op.EntityRef]
		if ok && op.Kind != "full_state" && !clock.Dominates(existing) {
			resp.Results = append(resp.Results, api.OpResult{
				OpID:          op.ID,
				ErrorCode:     api.ErrorCodeConflictConcurrent,
				Error:         "Concurrent modification detected",
				ExistingClock: existing.Clone(),
			})
			continue
		}

		r.seen[op.ID] = true
		if op.Kind == "full_state" {
			clear(r.clocks)
		} else {
			r.clocks[op.EntityRef] = clock.Clone()
		}
		r.ops = append(r.ops, api.RemoteOp{Op: op, Seq: int64(len(r.ops) + 1)})
		resp.Results = append(resp.Results, api.OpResult{OpID: op.ID, Accepted: true})
	}
	resp.LatestSeq = int64(len(r.ops))
	return resp, nil
}

func (r *fakeRemote) download(ctx context.Context, sinceSeq int64, excludeClient string, limit int) (*api.DownloadOpsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// загрузка начинается не раньше последней full-state операции
	start := sinceSeq
	var full *api.RemoteOp
	for i, op := range r.ops {
		if op.Kind == "full_state" {
			full = &r.ops[i]
			if op.Seq > start+1 {
				start = op.Seq - 1
			}
		}
	}
	replay := full != nil && full.Seq > sinceSeq && full.ClientID != excludeClient

	resp := &api.DownloadOpsResponse{LatestSeq: sinceSeq}
	for _, op := range r.ops {
		if op.Seq <= start {
			continue
		}
		if len(resp.Ops) == limit {
			resp.HasMore = true
			break
		}
		resp.LatestSeq = op.Seq
		if op.ClientID != excludeClient || (replay && op.Seq > full.Seq) {
			resp.Ops = append(resp.Ops, op)
		}
	}
	return resp, nil
}

func (r *fakeRemote) transport() *TransportMock {
	return &TransportMock{
		UploadOpsFunc:   r.upload,
		DownloadOpsFunc: r.download,
	}
}
