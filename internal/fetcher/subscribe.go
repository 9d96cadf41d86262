package fetcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"

	"github.com/tos-network/op-succinct-go/internal/errutil"
)

// SafeHeadUpdate is emitted by SubscribeSafeHeads whenever the L2 node
// reports a new safe head.
type SafeHeadUpdate struct {
	L1Block  uint64
	SafeHead uint64
}

// SubscribeSafeHeads opens an optional WS subscription to the L2 consensus
// node's new-safe-head notifications, short-circuiting the scheduler's 60s
// poll when a new safe head arrives (a SPEC_FULL addition; polling via
// GetSafeL1BlockForL2Block remains the path the scheduler's loop actually
// exercises). Returns a channel of updates and a close function.
func (f *Fetcher) SubscribeSafeHeads(ctx context.Context, wsURL string) (<-chan SafeHeadUpdate, func() error, error) {
	client, err := rpc.DialContext(ctx, wsURL)
	if err != nil {
		return nil, nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("dial safe-head subscription: %w", err))
	}

	raw := make(chan safeHeadAtL1BlockRPC, 16)
	sub, err := client.Subscribe(ctx, "optimism", raw, "newSafeHead")
	if err != nil {
		client.Close()
		return nil, nil, errutil.New(errutil.KindRPCUnavailable, fmt.Errorf("subscribe newSafeHead: %w", err))
	}

	out := make(chan SafeHeadUpdate, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil && !websocket.IsUnexpectedCloseError(err) {
					// Subscription dropped; the caller keeps polling regardless.
				}
				return
			case update := <-raw:
				out <- SafeHeadUpdate{L1Block: update.L1Block.Number, SafeHead: update.SafeHead.Number}
			}
		}
	}()

	return out, func() error { sub.Unsubscribe(); client.Close(); return nil }, nil
}
