package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleRecovery runs Recover once now and then on schedule (standard
// cron syntax or descriptors such as "@every 2m"). since returns the
// oldest bucket to sweep. The returned stop func waits for a running sweep.
func (p *Pipeline) ScheduleRecovery(ctx context.Context, schedule string, loc *time.Location, since func() string) (func(), error) {
	if loc == nil {
		loc = time.Local
	}
	sweep := func() {
		if _, err := p.Recover(ctx, since()); err != nil && ctx.Err() == nil {
			slog.Error("recovery sweep failed", "error", err)
		}
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, sweep); err != nil {
		return nil, fmt.Errorf("recovery schedule %q: %w", schedule, err)
	}

	sweep()
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
