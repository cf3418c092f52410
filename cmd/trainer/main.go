package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hierarch-rl/hac-controller/internal/config"
	"github.com/hierarch-rl/hac-controller/internal/goalspace"
	"github.com/hierarch-rl/hac-controller/internal/hierarchy"
	"github.com/hierarch-rl/hac-controller/internal/level"
	"github.com/hierarch-rl/hac-controller/internal/metrics"
	"github.com/hierarch-rl/hac-controller/internal/replay"
	"github.com/hierarch-rl/hac-controller/internal/toyenv"
	"github.com/hierarch-rl/hac-controller/internal/trainstore"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to run configuration YAML (defaults when empty)")
	cycles := flag.Int("cycles", 10, "improve/evaluate cycles to run")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	store, err := trainstore.NewStore(envOr("HAC_DB", cfg.StorePath))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	cfgJSON, _ := json.Marshal(cfg)
	runID, err := store.BeginRun(string(cfgJSON))
	if err != nil {
		log.Fatalf("begin run: %v", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("hac", registry)
	if addr := envOr("METRICS_ADDR", ""); addr != "" {
		go serveMetrics(addr, registry)
	}

	env := newEnvironment(cfg)
	stack, err := buildStack(cfg)
	if err != nil {
		log.Fatalf("build hierarchy: %v", err)
	}

	controller, err := hierarchy.NewController(cfg, stack, env, store, collector)
	if err != nil {
		log.Fatalf("build controller: %v", err)
	}
	controller.SetRunID(runID)

	fmt.Printf("Training run %s: %d levels, %d cycles, goal testing rate %.2f\n",
		runID, cfg.Levels, *cycles, cfg.SubgoalTestingRate)

	summaries, err := controller.Run(*cycles)
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	progress, err := store.Progress(runID)
	if err != nil {
		log.Fatalf("progress: %v", err)
	}
	fmt.Printf("\nDone: %d episodes (%d train / %d eval), %d env steps, %d successes\n",
		progress.Episodes, progress.TrainEpisodes, progress.EvalEpisodes,
		progress.Steps, progress.Successes)
	if len(summaries) > 0 {
		last := summaries[len(summaries)-1]
		fmt.Printf("Final cycle: train_success=%.2f eval_success=%.2f\n",
			last.TrainSuccessRate, last.EvalSuccessRate)
	}
}

// #endregion main

// #region wiring

// newEnvironment builds the toy world aligned with the run configuration.
func newEnvironment(cfg config.RunConfig) *toyenv.Env {
	envCfg := toyenv.DefaultConfig()
	envCfg.Seed = cfg.Seed
	envCfg.TimeLimit = cfg.TimeLimit
	return toyenv.New(envCfg)
}

// buildStack assembles the level agents, top first. Every level shares the
// positional goal space; upper levels propose waypoints whose reach covers
// what the chain below them can travel within its step allowance.
func buildStack(cfg config.RunConfig) ([]*level.Agent, error) {
	envCfg := toyenv.DefaultConfig()
	space := goalspace.New(goalspace.DefaultConfig(cfg.GoalThreshold))
	penalty := cfg.EffectivePenalty()

	bufCfg := replay.Config{
		Capacity:      cfg.BufferCapacity,
		RelabelRatio:  cfg.HindsightRatio,
		Strategy:      replay.Strategy(cfg.HindsightStrategy),
		MinSampleSize: cfg.MinSampleSize,
		Seed:          cfg.Seed,
	}

	agents := make([]*level.Agent, cfg.Levels)
	for i := 0; i < cfg.Levels; i++ {
		buffer, err := replay.NewBuffer(bufCfg, space)
		if err != nil {
			return nil, err
		}

		var pol level.Policy
		var own, delegate *goalspace.Space
		isTop := i == 0
		isBottom := i == cfg.Levels-1

		if !isTop {
			own = space
		}
		if isBottom {
			pol = toyenv.NewProportionalPolicy(cfg.Seed+int64(i), envCfg.StepSize, 0.2)
		} else {
			delegate = space
			depth := cfg.Levels - 1 - i // levels between this one and the environment
			reach := envCfg.StepSize * float32(math.Pow(float64(cfg.StepsPerLevel), float64(depth)))
			pol = toyenv.NewGoalProposalPolicy(cfg.Seed+int64(i), reach, 0.5)
		}

		agent, err := level.NewAgent(level.Config{Index: i, Total: cfg.Levels, SubgoalPenalty: penalty},
			pol, own, delegate, buffer)
		if err != nil {
			return nil, err
		}
		agents[i] = agent
	}
	return agents, nil
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	log.Printf("[TRAINER] metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("[TRAINER] metrics server: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion wiring
