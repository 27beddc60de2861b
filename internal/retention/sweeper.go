// Package retention applies age-based retention policies on a schedule.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"collabhub-go/internal/governance"
	"collabhub-go/internal/models"

	"github.com/robfig/cron/v3"
)

// ResourceStore is the slice of the data store the sweeper needs.
type ResourceStore interface {
	GetResources(ctx context.Context, includeTrashed bool) ([]models.Resource, error)
	InsertAudit(ctx context.Context, actorID int, action, targetType, targetID, metadata string) error
}

type Sweeper struct {
	engine   *governance.Engine
	store    ResourceStore
	schedule string
	cron     *cron.Cron
}

func NewSweeper(engine *governance.Engine, store ResourceStore, schedule string) *Sweeper {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Sweeper{
		engine:   engine,
		store:    store,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			log.Printf("Retention sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("bad retention schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep evaluates every live resource against the active retention policies
// and returns how many rules matched. Matched auto_delete rules trash the
// resource through the governance engine.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	resources, err := s.store.GetResources(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("load resources: %w", err)
	}

	matched := 0
	for _, r := range resources {
		rctx := models.ResourceContext{
			ResourceID:   r.ID,
			ResourceType: r.Type,
			Sensitivity:  r.Sensitivity,
			CreatedAt:    r.CreatedAt,
		}
		result, err := s.engine.Evaluate(ctx, models.PolicyRetention, rctx)
		if err != nil {
			log.Printf("Retention check failed for resource %s: %v", r.ID, err)
			continue
		}
		matched += len(result.Violations)
	}

	meta, _ := json.Marshal(map[string]int{"checked": len(resources), "matched": matched})
	if err := s.store.InsertAudit(ctx, 0, models.AuditRetentionSweep, "system", "", string(meta)); err != nil {
		log.Printf("Failed to record retention sweep: %v", err)
	}

	return matched, nil
}
