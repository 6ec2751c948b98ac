package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/engine/rules"
)

// NodeID is the unique identifier for the scheduler Graft node.
const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Scheduler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{rules.NodeID},
		Run: func(ctx context.Context) (*Scheduler, error) {
			engine, err := graft.Dep[*rules.Engine](ctx)
			if err != nil {
				return nil, err
			}
			return NewScheduler(engine), nil
		},
	})
}
