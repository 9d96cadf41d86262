package proofprovider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Cluster routes through a self-hosted proving service; it reuses
// Network's polling loop but has no auction semantics (spec §4.3), since
// a self-hosted cluster has no spot-market fulfillment to time out.
type Cluster struct {
	*Network
}

// DialCluster connects to a self-hosted cluster endpoint, typically on a
// private network and so plaintext rather than TLS.
func DialCluster(ctx context.Context, p NetworkParams) (*Cluster, error) {
	conn, err := grpc.NewClient(p.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial proving cluster %s: %w", p.Endpoint, err)
	}
	n := &Network{
		conn:           conn,
		rangeProgramID: p.RangeProgramID,
		aggProgramID:   p.AggProgramID,
		rangeVkey:      p.RangeVkey,
		aggVkey:        p.AggVkey,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 20),
		cfg: ProviderConfig{
			Kind:           "cluster",
			RangeStrategy:  p.RangeStrategy,
			AggStrategy:    p.AggStrategy,
			ProvingTimeout: p.ProvingTimeout,
			IsMainnet:      false, // auction axis never applies to a self-hosted cluster
		},
	}
	return &Cluster{Network: n}, nil
}
