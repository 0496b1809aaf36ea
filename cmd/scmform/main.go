package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/internal/config"
	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/entities"
	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/metrics"
	"github.com/goliatone/go-scmform/pkg/openapi"
	"github.com/goliatone/go-scmform/pkg/orchestrator"
	"github.com/goliatone/go-scmform/pkg/renderers/tui"
	"github.com/goliatone/go-scmform/pkg/schema"
	"github.com/goliatone/go-scmform/pkg/session"
	"github.com/goliatone/go-scmform/pkg/testsupport"
)

// flagKeys maps flag names to config keys; only flags the user set override
// the config file and environment.
var flagKeys = map[string]string{
	"base-url":   "api.base_url",
	"token":      "api.token",
	"timeout":    "api.timeout",
	"auth-file":  "session.auth_file",
	"account-id": "session.account_id",
	"user-type":  "session.user_type",
	"school-id":  "session.school_id",
	"form":       "form.id",
	"id":         "form.record_id",
	"schema-dir": "form.schema_dir",
	"watch":      "form.watch",
	"preset":     "form.preset",
	"openapi":    "form.openapi",
	"operation":  "form.operation",
	"entity":     "form.entity",
	"output":     "output.format",
	"log-level":  "log.level",
	"metrics":    "metrics.addr",
	"demo":       "demo",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, tui.ErrCancelled) || errors.Is(err, tui.ErrAborted) {
			fmt.Fprintln(os.Stderr, "cancelled")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "scmform: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scmform", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (json, yaml or toml)")
	search := fs.String("search-teachers", "", "list teachers matching the query and exit")
	fs.String("base-url", "", "API base URL")
	fs.String("token", "", "bearer token")
	fs.String("timeout", "", "HTTP timeout, e.g. 30s")
	fs.String("auth-file", "", "persisted login payload ({\"data\": {\"accountId\": ...}})")
	fs.String("account-id", "", "account id")
	fs.String("user-type", "", "acting user type (ADMIN, TEACHER)")
	fs.String("school-id", "", "school of a TEACHER user")
	fs.String("form", "", "form id: student, student-strict, teacher or a schema-dir id")
	fs.String("id", "", "record id; selects edit mode")
	fs.String("schema-dir", "", "directory of form definition files")
	fs.Bool("watch", false, "reload schema-dir definitions on change")
	fs.String("preset", "", "preset overrides file")
	fs.String("openapi", "", "OpenAPI document to derive the form from")
	fs.String("operation", "", "OpenAPI operation id")
	fs.String("entity", "", "entity name for OpenAPI forms")
	fs.String("output", "", "response output: json or pretty")
	fs.String("log-level", "", "log level")
	fs.String("metrics", "", "serve Prometheus metrics on this address")
	fs.Bool("demo", false, "run against a built-in in-memory school API")
	if err := fs.Parse(args); err != nil {
		return err
	}

	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if getter, ok := f.Value.(flag.Getter); ok {
			overrides[key] = getter.Get()
			return
		}
		overrides[key] = f.Value.String()
	})
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	if cfg.Demo {
		api := testsupport.NewSchoolAPI()
		srv := httptest.NewServer(api.Handler())
		defer srv.Close()
		cfg.API.BaseURL = srv.URL
		cfg.API.Token = testsupport.Token
		if cfg.Session.AccountID == "" && cfg.Session.AuthFile == "" {
			cfg.Session.AccountID = "42"
		}
		logger.Info().Str("url", srv.URL).Msg("demo API started")
	}

	store, err := loadSession(cfg.Session)
	if err != nil {
		return err
	}
	token := cfg.API.Token
	if token == "" {
		token = store.Current().Token
	}

	timeout, err := time.ParseDuration(cfg.API.Timeout)
	if err != nil {
		return fmt.Errorf("api.timeout: %w", err)
	}
	source, err := datasource.NewHTTP(cfg.API.BaseURL,
		datasource.WithHTTPClient(&http.Client{Timeout: timeout}),
		datasource.WithTokenSource(func() string { return token }),
		datasource.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if strings.TrimSpace(*search) != "" {
		return searchTeachers(ctx, source, store, *search)
	}

	collector, err := startMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithDataSource(source),
		orchestrator.WithSession(store),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(collector),
		orchestrator.WithFormOptions(
			form.WithInputSanitizer(bluemonday.StrictPolicy()),
			form.WithOnError(func(err error) {
				logger.Debug().Err(err).Msg("form error")
			}),
		),
	}
	defs, formID, closeDefs, err := definitions(ctx, cfg.Form, logger)
	if err != nil {
		return err
	}
	defer closeDefs()
	if defs != nil {
		opts = append(opts, orchestrator.WithDefinitions(defs))
	}
	if cfg.Form.Preset != "" {
		preset, err := orchestrator.NewPresetTransformerFromFS(os.DirFS(filepath.Dir(cfg.Form.Preset)), filepath.Base(cfg.Form.Preset))
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithTransformer(preset))
	}

	renderer := tui.New(
		tui.WithOutputFormat(tui.OutputFormat(strings.ToLower(cfg.Output.Format))),
		tui.WithLogger(logger),
	)
	orch := orchestrator.New(opts...)
	sess, err := orch.Open(ctx, orchestrator.Request{
		FormID:     formID,
		Identifier: cfg.Form.RecordID,
		Options:    []form.Option{form.WithNotifier(renderer), form.WithNavigator(renderer)},
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	if holder, ok := defs.(orchestrator.HolderSource); ok && cfg.Form.Watch {
		orch.Follow(sess, holder.Holder)
	}

	response, err := renderer.Run(ctx, sess.Engine, sess.Selector)
	if err != nil {
		return err
	}
	return renderer.Print(ctx, response)
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.WarnLevel
	}
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func loadSession(cfg config.SessionConfig) (*session.Store, error) {
	store := session.NewStore()
	if cfg.AuthFile != "" {
		raw, err := os.ReadFile(cfg.AuthFile)
		if err != nil {
			return nil, fmt.Errorf("session: read %s: %w", cfg.AuthFile, err)
		}
		snapshot, err := session.ParseAuth(raw)
		if err != nil {
			return nil, err
		}
		store.Set(snapshot)
		return store, nil
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("session: account id is required (--account-id or --auth-file): %w", session.ErrNoSession)
	}
	user := &session.User{Type: strings.ToUpper(cfg.UserType)}
	if cfg.SchoolID != "" {
		user.SchoolID = cfg.SchoolID
	}
	store.Set(session.Snapshot{AccountID: cfg.AccountID, User: user})
	return store, nil
}

func startMetrics(cfg config.MetricsConfig, logger zerolog.Logger) (*metrics.Collector, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	registry := prometheus.NewRegistry()
	collector, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(cfg.Addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", cfg.Addr).Msg("metrics server stopped")
		}
	}()
	return collector, nil
}

// definitions returns the definition source for cfg (nil selects the
// built-in forms), the form id to open and a cleanup func.
func definitions(ctx context.Context, cfg config.FormConfig, logger zerolog.Logger) (orchestrator.DefinitionSource, string, func(), error) {
	noop := func() {}
	switch {
	case cfg.OpenAPI != "":
		ops, err := openapi.ParseFile(ctx, cfg.OpenAPI)
		if err != nil {
			return nil, "", noop, err
		}
		op, ok := ops[strings.TrimSpace(cfg.Operation)]
		if !ok {
			return nil, "", noop, fmt.Errorf("%w: %q", openapi.ErrOperationNotFound, cfg.Operation)
		}
		store, err := schema.NewStore(op.Definition(cfg.Entity))
		if err != nil {
			return nil, "", noop, err
		}
		return store, op.ID, noop, nil
	case cfg.SchemaDir != "":
		holder, err := schema.NewHolder(cfg.SchemaDir, logger)
		if err != nil {
			return nil, "", noop, err
		}
		if cfg.Watch {
			if err := holder.Watch(); err != nil {
				return nil, "", noop, err
			}
		}
		return orchestrator.HolderSource{Holder: holder}, cfg.ID, holder.Stop, nil
	default:
		return nil, cfg.ID, noop, nil
	}
}

func searchTeachers(ctx context.Context, source datasource.DataSource, store *session.Store, query string) error {
	teachers, err := entities.ListTeachers(ctx, source, store)
	if err != nil {
		return err
	}
	for _, t := range entities.SearchTeachers(teachers, query) {
		fmt.Fprintf(os.Stdout, "%v\t%s\t%s\t%s\n", t.ID, t.FullName(), t.Email, t.Subject)
	}
	return nil
}
