package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/inferoute/pkg/breaker"
	"github.com/cuemby/inferoute/pkg/config"
	"github.com/cuemby/inferoute/pkg/core"
	"github.com/cuemby/inferoute/pkg/httpgateway"
	"github.com/cuemby/inferoute/pkg/log"
	"github.com/cuemby/inferoute/pkg/retry"
	"github.com/cuemby/inferoute/pkg/router"
	"github.com/spf13/cobra"
)

var (
	prefillEntries []prefillEntry
	decodeURLs     []string
	workerURLs     []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inference router",
	Long: `Start the router's HTTP listener, registering the worker set given on
the command line (or left empty for a discovery-only deployment) and
dispatching requests per the configured load-balancing policy.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a RouterConfig YAML file")
	serveCmd.Flags().String("listen-addr", ":8080", "Address the router's HTTP listener binds")
	serveCmd.Flags().String("policy", "round_robin", "Load-balancing policy: random, round_robin, power_of_two, consistent_hash, cache_aware")
	serveCmd.Flags().Bool("pd-disaggregated", false, "Run in prefill/decode disaggregated mode")

	serveCmd.Flags().StringSliceVar(&workerURLs, "worker-urls", nil, "Regular-mode worker URLs (repeatable)")
	serveCmd.Flags().StringSliceVar(&decodeURLs, "decode", nil, "Decode worker URLs for PD mode (repeatable)")
	serveCmd.Flags().VarP(newPrefillFlagValue(&prefillEntries), "prefill", "", "Prefill worker as url[,bootstrap_port|,none] (repeatable)")

	serveCmd.Flags().Int("cb-failure-threshold", 5, "Consecutive failures before a worker's circuit opens")
	serveCmd.Flags().Int("cb-success-threshold", 2, "Consecutive successes in half-open before a worker's circuit closes")
	serveCmd.Flags().Duration("cb-window", 30*time.Second, "Circuit breaker sliding window duration")
	serveCmd.Flags().Duration("cb-timeout", 30*time.Second, "Circuit breaker open-state timeout before probing half-open")

	serveCmd.Flags().Int("retry-max-retries", 2, "Maximum dispatch retries")
	serveCmd.Flags().Duration("retry-initial-backoff", 100*time.Millisecond, "Initial retry backoff")
	serveCmd.Flags().Duration("retry-max-backoff", 5*time.Second, "Maximum retry backoff")
	serveCmd.Flags().Float64("retry-multiplier", 2.0, "Retry backoff multiplier")
	serveCmd.Flags().Float64("retry-jitter", 0.2, "Retry backoff jitter factor, in [0, 1]")

	serveCmd.Flags().Int("max-concurrent-requests", 0, "Bound on in-flight requests before queuing (0 disables admission control)")
	serveCmd.Flags().Int("queue-size", 100, "Requests allowed to wait for a free slot once max-concurrent-requests is reached")
	serveCmd.Flags().Duration("queue-timeout", 5*time.Second, "Maximum time a queued request waits for a free slot before a 429")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	policyEngine, err := config.BuildEngine(cfg.Policy)
	if err != nil {
		return fmt.Errorf("failed to build policy engine: %w", err)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}
	registry := core.NewWorkerRegistry(httpClient, core.HealthCheckConfig{
		CheckInterval:    cfg.HealthInterval,
		TimeoutSecs:      cfg.HealthTimeout,
		SuccessThreshold: 1,
		FailureThreshold: 3,
		Endpoint:         "/health",
	})
	registry.OnChange(policyEngine.Reset)

	if err := registerStaticWorkers(registry); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry.StartHealthLoop(ctx)
	defer registry.Stop()

	cb := breaker.New(cfg.Breaker)
	retryCtl := retry.New(cfg.Retry)

	deps := router.Deps{
		Client:   httpClient,
		Registry: registry,
		Policy:   policyEngine,
		Breaker:  cb,
		Retry:    retryCtl,
	}

	var gateway *httpgateway.Gateway
	if cfg.PDDisaggregated {
		gateway = httpgateway.New(router.NewPDRouter(deps))
	} else {
		gateway = httpgateway.New(router.NewRegularRouter(deps))
	}

	handler := httpgateway.NewGate(gateway, httpgateway.AdmissionConfig{
		MaxConcurrent: cfg.Backpressure.MaxConcurrentRequests,
		QueueSize:     cfg.Backpressure.QueueSize,
		QueueTimeout:  cfg.Backpressure.QueueTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", cfg.ListenAddr).Bool("pd_disaggregated", cfg.PDDisaggregated).Msg("router listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("listener error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}

	log.Logger.Info().Msg("shutdown complete")
	return nil
}

// loadConfigFromFlags builds a RouterConfig from --config (if given)
// overlaid with the flags set on this invocation, the flags taking
// precedence the way cobra/pflag values always outrank a config file
// loaded before the command's own Execute() runs.
func loadConfigFromFlags(cmd *cobra.Command) (*config.RouterConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("listen-addr") {
		cfg.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flags().Changed("policy") {
		policyName, _ := cmd.Flags().GetString("policy")
		cfg.Policy.Kind = config.PolicyKind(policyName)
	}
	if cmd.Flags().Changed("pd-disaggregated") {
		cfg.PDDisaggregated, _ = cmd.Flags().GetBool("pd-disaggregated")
	}

	if cmd.Flags().Changed("cb-failure-threshold") {
		cfg.CircuitBreaker.FailureThreshold, _ = cmd.Flags().GetInt("cb-failure-threshold")
	}
	if cmd.Flags().Changed("cb-success-threshold") {
		cfg.CircuitBreaker.SuccessThreshold, _ = cmd.Flags().GetInt("cb-success-threshold")
	}
	if cmd.Flags().Changed("cb-window") {
		cfg.CircuitBreaker.WindowDuration, _ = cmd.Flags().GetDuration("cb-window")
	}
	if cmd.Flags().Changed("cb-timeout") {
		cfg.CircuitBreaker.TimeoutDuration, _ = cmd.Flags().GetDuration("cb-timeout")
	}

	if cmd.Flags().Changed("retry-max-retries") {
		cfg.RetryPolicy.MaxRetries, _ = cmd.Flags().GetInt("retry-max-retries")
	}
	if cmd.Flags().Changed("retry-initial-backoff") {
		cfg.RetryPolicy.InitialBackoff, _ = cmd.Flags().GetDuration("retry-initial-backoff")
	}
	if cmd.Flags().Changed("retry-max-backoff") {
		cfg.RetryPolicy.MaxBackoff, _ = cmd.Flags().GetDuration("retry-max-backoff")
	}
	if cmd.Flags().Changed("retry-multiplier") {
		cfg.RetryPolicy.Multiplier, _ = cmd.Flags().GetFloat64("retry-multiplier")
	}
	if cmd.Flags().Changed("retry-jitter") {
		cfg.RetryPolicy.JitterFactor, _ = cmd.Flags().GetFloat64("retry-jitter")
	}

	if cmd.Flags().Changed("max-concurrent-requests") {
		cfg.Backpressure.MaxConcurrentRequests, _ = cmd.Flags().GetInt("max-concurrent-requests")
	}
	if cmd.Flags().Changed("queue-size") {
		cfg.Backpressure.QueueSize, _ = cmd.Flags().GetInt("queue-size")
	}
	if cmd.Flags().Changed("queue-timeout") {
		cfg.Backpressure.QueueTimeout, _ = cmd.Flags().GetDuration("queue-timeout")
	}

	cfg.Breaker = cfg.CircuitBreaker.Into()
	cfg.Retry = cfg.RetryPolicy.Into()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerStaticWorkers adds the worker set given on the command line.
// A deployment relying purely on service discovery (spec.md §4.7)
// passes none of these flags and starts with an empty registry.
func registerStaticWorkers(registry *core.WorkerRegistry) error {
	for _, u := range workerURLs {
		if _, err := registry.Add(u, core.KindRegular); err != nil {
			return fmt.Errorf("failed to register worker %s: %w", u, err)
		}
	}
	for _, e := range prefillEntries {
		w, err := registry.Add(e.URL, core.KindPrefill)
		if err != nil {
			return fmt.Errorf("failed to register prefill worker %s: %w", e.URL, err)
		}
		if e.BootstrapPort != nil {
			w.BootstrapPort = e.BootstrapPort
		}
	}
	for _, u := range decodeURLs {
		if _, err := registry.Add(u, core.KindDecode); err != nil {
			return fmt.Errorf("failed to register decode worker %s: %w", u, err)
		}
	}
	return nil
}
