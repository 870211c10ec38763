package temporal

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/daverbj/solana-llm-integration/service/metrics"
)

// WorkerConfig wires the airdrop workflow to a task queue.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// MaxConcurrentAirdrops bounds activity and workflow task slots. Zero means 10.
	MaxConcurrentAirdrops int

	SolanaClient SolanaClientInterface
	Store        StoreInterface     // nil: airdrops are not recorded
	Publisher    PublisherInterface // nil: no events
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Worker runs AirdropWorkflow and its activities until stopped.
type Worker struct {
	client   client.Client
	worker   worker.Worker
	logger   *slog.Logger
	stopCh   chan interface{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewWorker dials Temporal and registers the airdrop workflow and activities.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "airdrop_worker", "task_queue", cfg.TaskQueue)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.TemporalHost, err)
	}

	slots := cfg.MaxConcurrentAirdrops
	if slots <= 0 {
		slots = 10
	}
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     slots,
		MaxConcurrentWorkflowTaskExecutionSize: slots,
	})

	// Registering the struct exposes its exported methods under their names,
	// which is how AirdropWorkflow refers to them.
	w.RegisterWorkflow(AirdropWorkflow)
	w.RegisterActivity(NewActivities(cfg.SolanaClient, cfg.Store, cfg.Publisher, cfg.Metrics, logger))

	logger.Info("airdrop worker registered",
		"slots", slots,
		"ledger", cfg.Store != nil,
		"events", cfg.Publisher != nil,
	)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
		stopCh: make(chan interface{}),
		done:   make(chan struct{}),
	}, nil
}

// Start polls the task queue and blocks until Stop is called.
func (w *Worker) Start() error {
	w.started.Store(true)
	defer close(w.done)

	w.logger.Info("polling task queue")
	if err := w.worker.Run(w.stopCh); err != nil {
		return fmt.Errorf("airdrop worker stopped: %w", err)
	}
	return nil
}

// Stop ends polling, waits for in-flight tasks and closes the client.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.started.Load() {
			<-w.done
		}
		w.client.Close()
		w.logger.Info("airdrop worker stopped")
	})
}
