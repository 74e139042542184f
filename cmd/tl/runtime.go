package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tracklog/tracklog/internal/config"
	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/eventbus"
	"github.com/tracklog/tracklog/internal/hooks"
	"github.com/tracklog/tracklog/internal/lockfile"
	"github.com/tracklog/tracklog/internal/notification"
	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/storage/dolt"
	"github.com/tracklog/tracklog/internal/storage/factory"
	"github.com/tracklog/tracklog/internal/telemetry"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/workflow"
)

// runtime is everything a command needs to mutate issues.
type runtime struct {
	store      storage.Storage
	catalog    *workflow.Catalog
	engine     *engine.Engine
	dispatcher *notification.Dispatcher
	bus        *eventbus.Conn
	lock       *lockfile.RunLock
}

// openRuntime opens the configured store, catalog and notification routes.
// It exits with a hint when the project has not been initialized.
func openRuntime(ctx context.Context) *runtime {
	if rt != nil {
		return rt
	}

	catalogPath := config.ResolvePath("workflow")
	catalog, err := workflow.Load(catalogPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			FatalErrorWithHint(fmt.Sprintf("no workflow catalog at %s", catalogPath), "Run 'tl init' to create a tracklog project")
		}
		FatalError("%v", err)
	}

	backend := config.GetString("backend")
	store, err := factory.New(ctx, backend, storeOptions())
	if err != nil {
		FatalError("failed to open %s store: %v", backend, err)
	}
	debug.Logf("opened %s store at %s\n", backend, store.Path())

	r := &runtime{
		store:   telemetry.WrapStorage(store),
		catalog: catalog,
	}

	routes, err := notification.LoadConfig(config.ResolvePath("notify.routes"))
	if err != nil {
		WarnError("notification routes: %v (using the log route)", err)
		routes = notification.DefaultConfig()
	}
	var dispatchOpts []notification.Option
	if url := config.GetString("nats.url"); url != "" {
		conn, err := eventbus.Connect(url, config.GetDuration("nats.timeout"))
		if err != nil {
			WarnError("journal events will not be published: %v", err)
		} else {
			r.bus = conn
			dispatchOpts = append(dispatchOpts, notification.WithPublisher(conn))
		}
	}
	r.dispatcher = notification.NewDispatcher(routes, dispatchOpts...)
	runner := hooks.NewRunnerFromProject(filepath.Join(config.ProjectDir(), config.DirName))
	runner.SetTimeout(config.GetDuration("hooks.timeout"))
	r.dispatcher.Add("hooks", runner)

	r.engine = engine.New(r.store, catalog, workflow.NewOracle(catalog),
		engine.WithNotifier(r.dispatcher),
	)
	rt = r
	return r
}

// storeOptions builds backend options from config.
func storeOptions() factory.Options {
	return factory.Options{
		Path: config.ResolvePath("db"),
		Dolt: dolt.Config{
			Host:     config.GetString("dolt.host"),
			Port:     config.GetInt("dolt.port"),
			User:     config.GetString("dolt.user"),
			Password: config.GetString("dolt.password"),
			Database: config.GetString("dolt.database"),
		},
	}
}

// actor resolves --actor, TL_ACTOR, the config actor and then $USER to a
// catalog user. Unknown logins act as anonymous.
func (r *runtime) actor() types.Actor {
	login := config.GetString("actor")
	if login == "" {
		login = os.Getenv("USER")
	}
	a := r.catalog.Actor(login)
	if a.IsAnonymous() && login != "" {
		WarnError("user %q is not in the workflow catalog, acting as anonymous", login)
	}
	return a
}

// acquireRunLock serializes coordinator runs against the same project.
func (r *runtime) acquireRunLock(ctx context.Context, command string) {
	dir := filepath.Join(config.ProjectDir(), config.DirName)
	lock := lockfile.New(dir)
	if err := lock.Acquire(ctx, config.GetDuration("lock.timeout"), command, r.store.Path()); err != nil {
		if errors.Is(err, lockfile.ErrLockBusy) {
			FatalErrorWithHint(err.Error(), "Wait for the other run to finish or raise lock.timeout")
		}
		FatalError("%v", err)
	}
	r.lock = lock
}

// Close drains notifications, then releases the lock and connections.
func (r *runtime) Close() {
	r.dispatcher.Wait()
	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			debug.Logf("closing NATS connection: %v\n", err)
		}
	}
	if r.lock != nil {
		_ = r.lock.Release()
	}
	if err := r.store.Close(); err != nil {
		WarnError("failed to close store: %v", err)
	}
}
