package app

import (
	"context"
	"fmt"

	"github.com/vk/wiregrid/internal/connect"
	"github.com/vk/wiregrid/internal/ctxlog"
	"github.com/vk/wiregrid/internal/engine"
	"github.com/vk/wiregrid/internal/engine/memengine"
	"github.com/vk/wiregrid/internal/engine/sioengine"
	"github.com/vk/wiregrid/internal/observability"
	"github.com/vk/wiregrid/internal/wiring"
)

// Run loads the wiring, executes every step in order against the engine
// and writes the report to the app's output. The first failing step stops
// the run.
func (a *App) Run(ctx context.Context) (*Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     a.config.Tracing,
		ServiceName: "wiregrid",
		SampleRatio: 1,
		Writer:      a.logW,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing)

	if err := a.startServer(); err != nil {
		return nil, err
	}
	defer func() { _ = a.closeServer() }()

	plan, err := wiring.Load(ctx, a.config.WiringPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load wiring: %w", err)
	}

	cfg := connect.Config{
		DefaultRule:         a.config.Rule(),
		DefaultSynapseModel: a.config.DefaultSynapseModel,
	}
	if plan.Defaults.Rule.Valid() {
		cfg.DefaultRule = plan.Defaults.Rule
	}
	if plan.Defaults.SynapseModel != "" {
		cfg.DefaultSynapseModel = plan.Defaults.SynapseModel
	}

	eng, name, closeEngine, err := a.openEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeEngine()

	conn := connect.New(eng, cfg, connect.WithMetrics(a.metrics))

	report := &Report{
		Engine:      name,
		Files:       plan.Files,
		Populations: populationReports(plan),
		Steps:       make([]StepReport, 0, len(plan.Steps)),
	}

	a.logger.Info("Executing wiring plan.", "steps", len(plan.Steps), "engine", name)
	for i, step := range plan.Steps {
		stepCtx := ctxlog.With(ctx, "step", step.Name(), "index", i)
		sr, err := a.runStep(stepCtx, conn, plan, step)
		if err != nil {
			return nil, fmt.Errorf("step %q at %s failed: %w", step.Name(), step.DeclRange, err)
		}
		report.Steps = append(report.Steps, sr)
	}
	a.logger.Info("Wiring plan finished.", "steps", len(report.Steps))

	if err := report.write(a.outW); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	a.logger.Debug("App.Run method finished.")
	return report, nil
}

// openEngine returns the injected engine, a remote engine when a URL is
// configured, or a fresh in-memory engine.
func (a *App) openEngine(ctx context.Context, cfg connect.Config) (engine.Engine, string, func(), error) {
	noop := func() {}
	if a.engine != nil {
		return a.engine, "custom", noop, nil
	}

	if a.config.EngineURL == "" {
		opts := []memengine.Option{
			memengine.WithThreads(a.config.Threads),
			memengine.WithSeed(a.config.Seed),
		}
		if cfg.DefaultSynapseModel != "" {
			opts = append(opts, memengine.WithSynapseModels(cfg.DefaultSynapseModel))
		}
		return memengine.New(opts...), "memory", noop, nil
	}

	eng, err := sioengine.Dial(ctx, sioengine.Config{
		URL:       a.config.EngineURL,
		Namespace: a.config.EngineNamespace,
		Timeout:   a.config.EngineTimeout,
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to connect to engine: %w", err)
	}
	return eng, "socketio", func() { _ = eng.Close() }, nil
}

func (a *App) runStep(ctx context.Context, conn *connect.Connector, plan *wiring.Plan, step wiring.Step) (StepReport, error) {
	logger := ctxlog.FromContext(ctx)
	sr := StepReport{Step: step.Name(), Kind: step.Kind.String()}

	switch step.Kind {
	case wiring.StepConnect:
		var opts []connect.ConnectOption
		if step.ReturnConnectome {
			opts = append(opts, connect.WithConnectome())
		}
		cm, err := conn.Connect(ctx, plan.Collection(step.Pre), plan.Collection(step.Post), step.ConnSpec, step.SynSpec, opts...)
		if err != nil {
			return sr, err
		}
		if cm != nil {
			n := cm.Len()
			sr.Count, sr.Connections = &n, cm
		}

	case wiring.StepCGConnect:
		pre, post := plan.Collection(step.Pre), plan.Collection(step.Post)
		if err := conn.CGConnect(ctx, pre, post, step.Generator, step.ParameterMap, step.SynapseModel); err != nil {
			return sr, err
		}
		if step.ReturnConnectome {
			cm, err := conn.GetConnections(ctx, connect.FromSource(pre), connect.ToTarget(post))
			if err != nil {
				return sr, err
			}
			n := cm.Len()
			sr.Count, sr.Connections = &n, cm
		}

	case wiring.StepDisconnect:
		if err := conn.Disconnect(ctx, plan.Collection(step.Pre), plan.Collection(step.Post), step.ConnSpec, step.SynSpec); err != nil {
			return sr, err
		}

	case wiring.StepQuery:
		q := step.Query
		var opts []connect.QueryOption
		if q.Source != "" {
			opts = append(opts, connect.FromSource(plan.Collection(q.Source)))
		}
		if q.Target != "" {
			opts = append(opts, connect.ToTarget(plan.Collection(q.Target)))
		}
		if q.SynapseModel != "" {
			opts = append(opts, connect.WithSynapseModel(q.SynapseModel))
		}
		if q.SynapseLabel != nil {
			opts = append(opts, connect.WithSynapseLabel(*q.SynapseLabel))
		}
		cm, err := conn.GetConnections(ctx, opts...)
		if err != nil {
			return sr, err
		}
		n := cm.Len()
		sr.Count, sr.Connections = &n, cm

	default:
		return sr, fmt.Errorf("unknown step kind %d", step.Kind)
	}

	logger.Info("Step completed.", "kind", sr.Kind)
	return sr, nil
}
