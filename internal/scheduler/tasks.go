package scheduler

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tos-network/op-succinct-go/internal/types"
)

// workerTask tracks one detached per-request worker. The scheduler owns
// the task map exclusively (spec §5); workers only write their own err
// before closing done.
type workerTask struct {
	req  *types.Request
	err  error
	done chan struct{}
}

func (t *workerTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// dispatch spawns a detached worker for req and records its handle keyed
// by request id. Workers are never forcibly cancelled; the reaper picks
// up their outcome on a later iteration (spec §5).
func (s *Scheduler) dispatch(ctx context.Context, req *types.Request) {
	task := &workerTask{req: req, done: make(chan struct{})}
	s.mu.Lock()
	s.tasks[req.ID] = task
	s.mu.Unlock()

	log.Info("dispatching proof request", "request_id", req.ID, "type", req.Type, "start_block", req.StartBlock, "end_block", req.EndBlock)
	go func() {
		defer close(task.done)
		defer func() {
			if p := recover(); p != nil {
				task.err = fmt.Errorf("worker panic: %v", p)
			}
		}()
		task.err = s.deps.Fulfiller.Fulfill(ctx, req)
	}()
}

// reapFinishedTasks is step 3: any worker whose handle has completed with
// an error (or panic) moves its request to Failed under the retry policy;
// successful workers just leave the map, the store already reflecting
// their Prove/Complete transition.
func (s *Scheduler) reapFinishedTasks(ctx context.Context) error {
	s.mu.Lock()
	finished := make([]*workerTask, 0, len(s.tasks))
	for id, t := range s.tasks {
		if t.finished() {
			finished = append(finished, t)
			delete(s.tasks, id)
		}
	}
	s.mu.Unlock()

	for _, t := range finished {
		if t.err == nil {
			continue
		}
		log.Warn("proof request worker failed", "request_id", t.req.ID, "err", t.err)
		if err := s.handleFailedRequest(ctx, t.req, false); err != nil {
			return err
		}
	}
	return nil
}

// sweepOrphans is step 4: a request in WitnessGeneration or Execution
// with no live worker task was left behind by a crashed process; fail it
// so the gap pass re-covers its range.
func (s *Scheduler) sweepOrphans(ctx context.Context) error {
	s.mu.Lock()
	live := mapset.NewThreadUnsafeSetWithSize[int64](len(s.tasks))
	for id := range s.tasks {
		live.Add(id)
	}
	s.mu.Unlock()

	for _, status := range []types.RequestStatus{types.StatusWitnessGeneration, types.StatusExecution} {
		reqs, err := s.deps.Store.RequestsByStatus(ctx, status, s.commitment, s.chain)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			if live.Contains(req.ID) {
				continue
			}
			log.Warn("orphaned in-flight request, marking failed", "request_id", req.ID, "status", status)
			if err := s.deps.Store.UpdateStatus(ctx, req.ID, types.StatusFailed); err != nil {
				return err
			}
		}
	}
	return nil
}

// taskCount reports the number of live worker handles, for metrics.
func (s *Scheduler) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
