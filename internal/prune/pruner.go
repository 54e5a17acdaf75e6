// Package prune applies the retention policy to the backup store in two
// phases: a plan that records exactly what would be deleted, and a run
// that executes a previously written plan after revalidating it.
package prune

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/pkg/errclass"
	"github.com/fleetconf-project/fleetconf/pkg/fsutil"
	"github.com/fleetconf-project/fleetconf/pkg/logging"
	"github.com/fleetconf-project/fleetconf/pkg/model"
)

// Pruner plans and executes retention deletions.
type Pruner struct {
	store    *backupstore.Store
	plansDir string
	policy   model.RetentionPolicy
	log      *logging.Logger
	now      func() time.Time
}

// NewPruner creates a pruner writing plans under plansDir.
func NewPruner(store *backupstore.Store, plansDir string, policy model.RetentionPolicy, log *logging.Logger) *Pruner {
	return &Pruner{store: store, plansDir: plansDir, policy: policy, log: log, now: time.Now}
}

// Plan computes the protected and deletable sets and persists the plan.
// Nothing is deleted in this phase.
func (p *Pruner) Plan() (*model.PrunePlan, error) {
	if err := p.policy.Validate(); err != nil {
		return nil, err
	}

	protected, toDelete, err := p.partition()
	if err != nil {
		return nil, err
	}

	plan := &model.PrunePlan{
		PlanID:    uuid.NewString(),
		CreatedAt: p.now().UTC(),
		Protected: protected,
		ToDelete:  toDelete,
		Policy:    p.policy,
	}
	for _, s := range toDelete {
		plan.EstimatedBytes += s.SizeBytes
	}

	if err := p.writePlan(plan); err != nil {
		return nil, err
	}
	p.log.Info("prune plan written", map[string]any{
		"plan_id":   plan.PlanID,
		"to_delete": len(plan.ToDelete),
		"protected": len(plan.Protected),
	})
	return plan, nil
}

// Run executes a plan. The protected set is recomputed first; if any
// snapshot the plan wants to delete became protected since planning,
// the run refuses rather than deleting stale state.
func (p *Pruner) Run(planID string) (deleted int, freedBytes int64, err error) {
	plan, err := p.loadPlan(planID)
	if err != nil {
		return 0, 0, err
	}

	protectedNow, _, err := p.partition()
	if err != nil {
		return 0, 0, err
	}
	protectedSet := make(map[string]bool, len(protectedNow))
	for _, s := range protectedNow {
		protectedSet[snapKey(s)] = true
	}
	for _, s := range plan.ToDelete {
		if protectedSet[snapKey(s)] {
			return 0, 0, errclass.ErrPrunePlanMismatch.WithMessagef(
				"snapshot %s %s is now protected; re-plan before pruning",
				s.Device, s.Timestamp.Format(time.RFC3339))
		}
	}

	for _, s := range plan.ToDelete {
		if err := p.store.Delete(s); err != nil {
			return deleted, freedBytes, fmt.Errorf("delete snapshot %s: %w", s.Device, err)
		}
		deleted++
		freedBytes += s.SizeBytes
	}

	p.deletePlan(planID)
	p.log.Info("prune complete", map[string]any{"deleted": deleted, "freed_bytes": freedBytes})
	return deleted, freedBytes, nil
}

// partition splits all snapshots into protected and deletable per the
// retention policy.
func (p *Pruner) partition() (protected, toDelete []model.Snapshot, err error) {
	snaps, err := p.store.ListAll()
	if err != nil {
		return nil, nil, err
	}

	// ListAll is most-recent-first, so per-device rank counts newest
	// snapshots first.
	rank := map[string]int{}
	cutoff := p.now().UTC().Add(-p.policy.KeepMinAge)
	for _, s := range snaps {
		r := rank[s.Device]
		rank[s.Device] = r + 1

		keep := r == 0 || // the newest snapshot of a device is always kept
			r < p.policy.KeepMinSnapshots ||
			s.Timestamp.After(cutoff)
		if keep {
			protected = append(protected, s)
		} else {
			toDelete = append(toDelete, s)
		}
	}
	return protected, toDelete, nil
}

func snapKey(s model.Snapshot) string {
	return fmt.Sprintf("%s/%d/%s", s.Device, s.Timestamp.UnixMilli(), s.Kind)
}

func (p *Pruner) writePlan(plan *model.PrunePlan) error {
	if err := os.MkdirAll(p.plansDir, 0755); err != nil {
		return fmt.Errorf("create prune dir: %w", err)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal prune plan: %w", err)
	}
	return fsutil.AtomicWrite(p.planPath(plan.PlanID), data, 0644)
}

func (p *Pruner) loadPlan(planID string) (*model.PrunePlan, error) {
	data, err := os.ReadFile(p.planPath(planID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no prune plan %s; run the plan phase first", planID)
		}
		return nil, fmt.Errorf("read prune plan: %w", err)
	}
	var plan model.PrunePlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("unmarshal prune plan: %w", err)
	}
	return &plan, nil
}

func (p *Pruner) deletePlan(planID string) {
	os.Remove(p.planPath(planID))
}

func (p *Pruner) planPath(planID string) string {
	return filepath.Join(p.plansDir, planID+".json")
}
