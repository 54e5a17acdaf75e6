package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fleetconf-project/fleetconf/internal/audit"
	"github.com/fleetconf-project/fleetconf/internal/backupstore"
	"github.com/fleetconf-project/fleetconf/internal/driver"
	"github.com/fleetconf-project/fleetconf/internal/executor"
	"github.com/fleetconf-project/fleetconf/internal/inventory"
	"github.com/fleetconf-project/fleetconf/internal/lock"
	"github.com/fleetconf-project/fleetconf/internal/orchestrator"
	"github.com/fleetconf-project/fleetconf/internal/render"
	"github.com/fleetconf-project/fleetconf/internal/workspace"
	"github.com/fleetconf-project/fleetconf/pkg/config"
	"github.com/fleetconf-project/fleetconf/pkg/logging"
	"github.com/fleetconf-project/fleetconf/pkg/metrics"
	"github.com/fleetconf-project/fleetconf/pkg/model"
	"github.com/fleetconf-project/fleetconf/pkg/progress"
	"github.com/fleetconf-project/fleetconf/pkg/webhook"
)

// fleetLockTTL is the lease on the fleet lock; long enough for any
// realistic run, short enough that a crashed run can be stolen.
const fleetLockTTL = 4 * time.Hour

// appContext wires the workspace's collaborators for one CLI invocation.
type appContext struct {
	ws      *workspace.Workspace
	cfg     *config.Config
	log     *logging.Logger
	store   *backupstore.Store
	drv     driver.Driver
	auditor *audit.FileAppender
	locks   *lock.Manager
	metrics *metrics.Registry
	hooks   *webhook.Client
}

// requireWorkspace discovers the workspace from CWD and builds the app
// context, or exits with an error.
func requireWorkspace() *appContext {
	cwd, err := os.Getwd()
	if err != nil {
		fmtErr("cannot get current directory: %v", err)
		os.Exit(1)
	}
	ws, err := workspace.Discover(cwd)
	if err != nil {
		fmtErr("not a fleetconf workspace (or any parent): run 'fleetconf init' first")
		os.Exit(1)
	}

	cfg, err := config.Load(ws.Root)
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}

	log := buildLogger(cfg)
	drv, err := driver.New(cfg.Driver)
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}

	app := &appContext{
		ws:      ws,
		cfg:     cfg,
		log:     log,
		store:   backupstore.New(ws.BackupsDir()),
		drv:     drv,
		auditor: audit.NewFileAppender(ws.AuditLogPath()),
		locks:   lock.NewManager(ws.LocksDir(), model.LockPolicy{DefaultLeaseTTL: fleetLockTTL}),
	}
	if cfg.Metrics.Enabled {
		app.metrics = metrics.NewRegistry()
		go app.metrics.Serve(cfg.Metrics.Listen)
	}
	if len(cfg.Webhooks) > 0 {
		app.hooks = webhook.NewClient(webhookConfig(cfg))
	}
	return app
}

func buildLogger(cfg *config.Config) *logging.Logger {
	level := logging.Level(cfg.Logging.Level)
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(level, logging.Format(cfg.Logging.Format))
}

func webhookConfig(cfg *config.Config) *webhook.Config {
	wcfg := webhook.DefaultConfig()
	for _, h := range cfg.Webhooks {
		hook := webhook.HookConfig{
			URL:     h.URL,
			Secret:  h.Secret,
			Timeout: 10 * time.Second,
			Enabled: true,
		}
		for _, e := range h.Events {
			hook.Events = append(hook.Events, webhook.EventType(e))
		}
		wcfg.Hooks = append(wcfg.Hooks, hook)
	}
	return wcfg
}

// inventory loads and validates the workspace inventory.
func (a *appContext) inventory() *inventory.Inventory {
	inv, err := inventory.Load(a.ws.InventoryPath())
	if err != nil {
		fmtErr("load inventory: %v", err)
		os.Exit(1)
	}
	return inv
}

// renderer returns the template renderer over the workspace's
// templates directory.
func (a *appContext) renderer() *render.Renderer {
	return render.New(a.ws.TemplatesDir())
}

// orchestrator builds the run engine with the workspace's observability
// stack attached.
func (a *appContext) orchestrator(total int, op string) *orchestrator.Orchestrator {
	var cb progress.Callback
	if !noProgress && !jsonOutput {
		cb = progress.NewTerminal(op, total, true).Callback()
	}
	return orchestrator.New(orchestrator.Options{
		Executor:      executor.New(a.drv, a.store, a.log),
		Log:           a.log,
		HaltThreshold: a.cfg.Halt.FailureRateThreshold,
		Audit:         a.auditor,
		Metrics:       a.metrics,
		Hooks:         a.hooks,
		Progress:      cb,
		RunsDir:       a.ws.RunsDir(),
	})
}

// withFleetLock runs fn while holding the fleet lock, releasing it on
// all paths.
func (a *appContext) withFleetLock(runID model.RunID, purpose string, steal bool, fn func() error) error {
	acquire := a.locks.Acquire
	if steal {
		acquire = a.locks.Steal
	}
	rec, err := acquire(runID, purpose)
	if err != nil {
		return err
	}
	defer a.locks.Release(rec.HolderNonce)
	return fn()
}

// close flushes async collaborators before exit.
func (a *appContext) close() {
	if a.hooks != nil {
		a.hooks.Close()
	}
}

func fmtErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fleetconf: "+format+"\n", args...)
}
