// Package main is the entrypoint for the sharekit CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docmesh/sharekit/internal/access"
	"github.com/docmesh/sharekit/internal/apiclient"
	"github.com/docmesh/sharekit/internal/cache"
	"github.com/docmesh/sharekit/internal/commit"
	"github.com/docmesh/sharekit/internal/config"
	"github.com/docmesh/sharekit/internal/httpclient"
	"github.com/docmesh/sharekit/internal/logutil"
	"github.com/docmesh/sharekit/internal/mockapi"
	"github.com/docmesh/sharekit/internal/operations"
	"github.com/docmesh/sharekit/internal/reconcile"

	// Register cache drivers
	_ "github.com/docmesh/sharekit/internal/cache/loader"
)

const usage = `Usage: sharekit [flags] <command> [args]

Commands:
  principals <resource>                      list who has access
  grant <resource> <id> <kind> <level>       grant access to a user or group
  access <resource> <id> <level>             change an existing grant (level "none" revokes)
  revoke <resource> <id>                     revoke access
  links <resource>                           list room links
  remove-link <resource> <link-id>           remove or revoke a room link
  duplicate <resource>                       duplicate a room, waiting on the operation
`

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	baseURL := flag.String("base-url", "", "Platform base URL (overrides config)")
	token := flag.String("token", "", "Bearer token (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or sqlite (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	resourceKind := flag.String("resource-kind", "custom_room", "Resource kind: file, folder, public_room, custom_room")
	notify := flag.Bool("notify", false, "Notify newly granted principals")
	message := flag.String("message", "", "Message attached to grant notifications")
	dev := flag.Bool("dev", false, "Run against an in-process mock platform")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			BaseURL:     baseURL,
			Token:       token,
			SSRFMode:    ssrfMode,
			CacheDriver: cacheDriver,
			LogLevel:    logLevel,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logutil.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		bootstrapLogger.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *dev {
		origin, shutdown, err := startDevPlatform(cfg, logger)
		if err != nil {
			logger.Error("failed to start dev platform", "error", err)
			os.Exit(1)
		}
		defer shutdown()
		cfg.API.BaseURL = origin
		cfg.OutboundHTTP.SSRFMode = "off"
		logger.Info("dev platform running", "origin", origin)
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.close()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	kind := apiclient.ResourceKind(*resourceKind)
	if err := app.run(ctx, args, kind, apiclient.NotifyOptions{Notify: *notify, Message: *message}); err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

// app wires the client stack behind the subcommands.
type app struct {
	cfg    *config.Config
	api    apiclient.API
	poller *operations.Poller
	cache  cache.Cache
	logger *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	hc := httpclient.New(&cfg.OutboundHTTP, cfg.API.Token)
	api := apiclient.New(cfg.API.BaseURL, hc, logger)

	driver := cfg.Cache.Driver
	if driver == "" {
		driver = "memory"
	}
	store, err := cache.New(driver, driverSettings(cfg, driver))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &app{
		cfg:    cfg,
		api:    api,
		poller: operations.NewPoller(api, cfg.Poll, logger),
		cache:  store,
		logger: logger,
	}, nil
}

func driverSettings(cfg *config.Config, driver string) map[string]any {
	raw, ok := cfg.Cache.Drivers[driver]
	if !ok {
		return nil
	}
	settings, _ := raw.(map[string]any)
	return settings
}

func (a *app) close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close cache", "error", err)
	}
}

func (a *app) run(ctx context.Context, args []string, kind apiclient.ResourceKind, notify apiclient.NotifyOptions) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "principals":
		return a.cmdPrincipals(ctx, rest, kind)
	case "grant":
		return a.cmdGrant(ctx, rest, kind, notify)
	case "access":
		return a.cmdAccess(ctx, rest, kind, notify)
	case "revoke":
		return a.cmdRevoke(ctx, rest, kind, notify)
	case "links":
		return a.cmdLinks(ctx, rest, kind)
	case "remove-link":
		return a.cmdRemoveLink(ctx, rest, kind)
	case "duplicate":
		return a.cmdDuplicate(ctx, rest, kind)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadSession fetches the share list and opens an editing session on it.
// The fetched list also refreshes the offline cache.
func (a *app) loadSession(ctx context.Context, res apiclient.Resource) (*reconcile.Session, error) {
	refs, err := a.api.FetchPrincipals(ctx, res)
	if err != nil {
		return nil, err
	}
	if cerr := a.cache.Put(ctx, cache.Snapshot{
		Resource:   res.ID,
		Principals: refs,
		FetchedAt:  time.Now().UTC(),
	}); cerr != nil {
		a.logger.Warn("failed to refresh cache", "resource", res.ID, "error", cerr)
	}

	session := reconcile.NewSession()
	session.LoadBaseline(refs)
	return session, nil
}

func (a *app) cmdPrincipals(ctx context.Context, args []string, kind apiclient.ResourceKind) error {
	if len(args) != 1 {
		return errors.New("usage: principals <resource>")
	}
	res := apiclient.Resource{ID: args[0], Kind: kind}

	refs, err := a.api.FetchPrincipals(ctx, res)
	if err != nil {
		// Offline fallback: render the last cached snapshot.
		snap, cerr := a.cache.Get(ctx, res.ID)
		if cerr != nil {
			return err
		}
		a.logger.Warn("showing cached principals", "resource", res.ID, "fetched_at", snap.FetchedAt, "fetch_error", err)
		printPrincipals(snap.Principals)
		return nil
	}

	if cerr := a.cache.Put(ctx, cache.Snapshot{
		Resource:   res.ID,
		Principals: refs,
		FetchedAt:  time.Now().UTC(),
	}); cerr != nil {
		a.logger.Warn("failed to refresh cache", "resource", res.ID, "error", cerr)
	}
	printPrincipals(refs)
	return nil
}

func printPrincipals(refs []access.PrincipalRef) {
	for _, ref := range refs {
		locked := ""
		if ref.Locked {
			locked = " (locked)"
		}
		name := ref.DisplayName
		if name == "" {
			name = string(ref.ID)
		}
		fmt.Printf("%-24s %-6s %-10s %s%s\n", ref.ID, ref.Kind, ref.Access, name, locked)
	}
}

func (a *app) cmdGrant(ctx context.Context, args []string, kind apiclient.ResourceKind, notify apiclient.NotifyOptions) error {
	if len(args) != 4 {
		return errors.New("usage: grant <resource> <id> <user|group> <level>")
	}
	res := apiclient.Resource{ID: args[0], Kind: kind}

	var pk access.PrincipalKind
	switch args[2] {
	case "user":
		pk = access.KindUser
	case "group":
		pk = access.KindGroup
	default:
		return fmt.Errorf("invalid principal kind %q: must be user or group", args[2])
	}
	level, err := access.ParseLevel(args[3])
	if err != nil {
		return err
	}

	session, err := a.loadSession(ctx, res)
	if err != nil {
		return err
	}
	if err := session.StageAdd(access.PrincipalRef{
		ID:     access.PrincipalID(args[1]),
		Kind:   pk,
		Access: level,
	}); err != nil {
		return err
	}
	return a.commit(ctx, res, session, notify)
}

func (a *app) cmdAccess(ctx context.Context, args []string, kind apiclient.ResourceKind, notify apiclient.NotifyOptions) error {
	if len(args) != 3 {
		return errors.New("usage: access <resource> <id> <level>")
	}
	res := apiclient.Resource{ID: args[0], Kind: kind}
	level, err := access.ParseLevel(args[2])
	if err != nil {
		return err
	}

	session, err := a.loadSession(ctx, res)
	if err != nil {
		return err
	}
	id := access.PrincipalID(args[1])
	if _, ok := session.Baseline(id); !ok {
		return fmt.Errorf("principal %q has no access to %q", id, res.ID)
	}
	session.StageAccessChange(id, level)
	return a.commit(ctx, res, session, notify)
}

func (a *app) cmdRevoke(ctx context.Context, args []string, kind apiclient.ResourceKind, notify apiclient.NotifyOptions) error {
	if len(args) != 2 {
		return errors.New("usage: revoke <resource> <id>")
	}
	res := apiclient.Resource{ID: args[0], Kind: kind}

	session, err := a.loadSession(ctx, res)
	if err != nil {
		return err
	}
	id := access.PrincipalID(args[1])
	if _, ok := session.Baseline(id); !ok {
		return fmt.Errorf("principal %q has no access to %q", id, res.ID)
	}
	session.StageRemove(id)
	return a.commit(ctx, res, session, notify)
}

func (a *app) commit(ctx context.Context, res apiclient.Resource, session *reconcile.Session, notify apiclient.NotifyOptions) error {
	coordinator := commit.NewCoordinator(a.api, a.poller, res, session, nil, a.logger)
	result, err := coordinator.Commit(ctx, notify)
	if err != nil {
		for _, item := range result.Failed {
			a.logger.Error("item failed", "kind", item.Item.Kind, "principal", item.Item.ID, "error", item.Err)
		}
		return err
	}
	fmt.Printf("%s: %d item(s) applied\n", result.Outcome, len(result.Succeeded))
	return nil
}

func (a *app) cmdLinks(ctx context.Context, args []string, kind apiclient.ResourceKind) error {
	if len(args) != 1 {
		return errors.New("usage: links <resource>")
	}
	links, err := a.api.ListRoomLinks(ctx, apiclient.Resource{ID: args[0], Kind: kind})
	if err != nil {
		return err
	}
	for _, l := range links {
		general := ""
		if l.General {
			general = " (general)"
		}
		fmt.Printf("%-36s %-10s %s%s\n", l.ID, l.Access, l.Title, general)
	}
	return nil
}

func (a *app) cmdRemoveLink(ctx context.Context, args []string, kind apiclient.ResourceKind) error {
	if len(args) != 2 {
		return errors.New("usage: remove-link <resource> <link-id>")
	}
	res := apiclient.Resource{ID: args[0], Kind: kind}

	links, err := a.api.ListRoomLinks(ctx, res)
	if err != nil {
		return err
	}
	var link apiclient.RoomLink
	found := false
	for _, l := range links {
		if l.ID == args[1] {
			link, found = l, true
			break
		}
	}
	if !found {
		return fmt.Errorf("link %q not found on %q", args[1], res.ID)
	}

	coordinator := commit.NewCoordinator(a.api, a.poller, res, reconcile.NewSession(), nil, a.logger)
	replacement, replaced, err := coordinator.RemoveLink(ctx, link)
	if err != nil {
		return err
	}
	if replaced {
		fmt.Printf("link revoked; new id %s\n", replacement.ID)
	} else {
		fmt.Println("link deleted")
	}
	return nil
}

func (a *app) cmdDuplicate(ctx context.Context, args []string, kind apiclient.ResourceKind) error {
	if len(args) != 1 {
		return errors.New("usage: duplicate <resource>")
	}
	res := apiclient.Resource{ID: args[0], Kind: kind}

	coordinator := commit.NewCoordinator(a.api, a.poller, res, reconcile.NewSession(), nil, a.logger)
	a.poller.OnProgress = func(op *operations.Operation) {
		a.logger.Info("operation progress", "operation", op.Handle.ID, "progress", op.LastProgress())
	}
	op, err := coordinator.DuplicateRoom(ctx)
	if err != nil {
		if op != nil {
			return fmt.Errorf("duplicate ended in state %s: %w", op.State(), err)
		}
		return err
	}
	fmt.Printf("room %s duplicated (operation %s)\n", res.ID, op.Handle.ID)
	return nil
}

// startDevPlatform serves an in-process mock platform on a loopback
// port, seeded with a small share list so commands have data to act on.
func startDevPlatform(cfg *config.Config, logger *slog.Logger) (origin string, shutdown func(), err error) {
	platform := mockapi.New(cfg.API.Token, logger)
	platform.Seed("demo", []access.PrincipalRef{
		{ID: "owner", Kind: access.KindUser, Access: access.Full, DisplayName: "Owner", Locked: true},
		{ID: "alice", Kind: access.KindUser, Access: access.Edit, DisplayName: "Alice"},
		{ID: "readers", Kind: access.KindGroup, Access: access.Read, DisplayName: "Readers"},
	})
	platform.SeedLink("demo", "Shared link", access.Read, true)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	srv := &http.Server{Handler: platform.Handler()}
	go func() {
		if serr := srv.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			logger.Error("dev platform stopped", "error", serr)
		}
	}()

	shutdown = func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
	return "http://" + ln.Addr().String(), shutdown, nil
}
