package game

import (
	"github.com/okian/callout/internal/domain/cluster"
	"github.com/okian/callout/internal/domain/model"
	"github.com/okian/callout/pkg/metrics"
)

func recordVoteRejected(reason string) { metrics.RecordVoteRejected(reason) }

func recordClusterResolved(mode model.Mode, state cluster.State) {
	metrics.RecordClusterResolved(string(mode), string(state))
}
