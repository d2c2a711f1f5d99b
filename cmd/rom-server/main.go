package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/config"
	"rom-stream-go/internal/ingest"
	"rom-stream-go/internal/jobs"
	"rom-stream-go/internal/movement"
	"rom-stream-go/internal/output"
	"rom-stream-go/internal/pose"
	"rom-stream-go/internal/rom"
	"rom-stream-go/internal/server"
	"rom-stream-go/internal/session"
	"rom-stream-go/internal/simulator"
	"rom-stream-go/internal/storage"
	"rom-stream-go/internal/types"
)

type metrics struct {
	framesIngested   atomic.Uint64
	reportsOK        atomic.Uint64
	reportsErr       atomic.Uint64
	reportsUntracked atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"frames_ingested_total":  m.framesIngested.Load(),
		"report_write_ok_total":  m.reportsOK.Load(),
		"report_write_err_total": m.reportsErr.Load(),
		"report_untracked_total": m.reportsUntracked.Load(),
	}
}

// maxReportSessions caps how many ingest sessions get a shutdown report.
const maxReportSessions = 4096

// sessionTracker remembers which sessions arrived over ingest so their
// reports can be written on shutdown. Sessions past limit are counted, not kept.
type sessionTracker struct {
	proc    ingest.Processor
	metrics *metrics
	limit   int

	mu  sync.Mutex
	ids map[string]struct{}
}

func newSessionTracker(proc ingest.Processor, m *metrics, limit int) *sessionTracker {
	return &sessionTracker{proc: proc, metrics: m, limit: limit, ids: make(map[string]struct{})}
}

func (s *sessionTracker) ProcessKeypoints(ctx context.Context, kp angles.Keypoints, confidence float64, req analysis.Request) (analysis.Result, error) {
	s.metrics.framesIngested.Add(1)
	s.remember(req.SessionID)
	return s.proc.ProcessKeypoints(ctx, kp, confidence, req)
}

func (s *sessionTracker) remember(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return
	}
	if len(s.ids) >= s.limit {
		if s.metrics.reportsUntracked.Add(1) == 1 {
			log.Printf("session report limit %d reached; later sessions get no report", s.limit)
		}
		return
	}
	s.ids[id] = struct{}{}
}

func (s *sessionTracker) sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	flag.StringVar(&cfg.StorageDriver, "storage", cfg.StorageDriver, "Storage driver (memory or sqlite)")
	flag.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "SQLite database path")
	flag.StringVar(&cfg.PoseEndpoint, "pose-endpoint", cfg.PoseEndpoint, "ZMQ endpoint of the pose worker")
	flag.DurationVar(&cfg.PoseTimeout, "pose-timeout", cfg.PoseTimeout, "Pose worker request timeout")
	flag.BoolVar(&cfg.PoseRequired, "pose-required", cfg.PoseRequired, "Exit if the pose worker is unreachable at startup")
	flag.Float64Var(&cfg.ConfidenceThreshold, "confidence-threshold", cfg.ConfidenceThreshold, "Minimum keypoint confidence")
	flag.Float64Var(&cfg.MinKeypointsRatio, "min-keypoints-ratio", cfg.MinKeypointsRatio, "Minimum ratio of confident keypoints")
	flag.DurationVar(&cfg.MonitorInterval, "monitor-interval", cfg.MonitorInterval, "Pose worker health poll interval")
	flag.StringVar(&cfg.IngestEndpoint, "ingest-endpoint", cfg.IngestEndpoint, "ZMQ endpoint for keypoint ingest (empty disables)")
	flag.IntVar(&cfg.IngestLogEvery, "ingest-log-every", cfg.IngestLogEvery, "Log every Nth ingest error")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of ingest workers")
	flag.BoolVar(&cfg.RawLogEnabled, "raw-log", cfg.RawLogEnabled, "Write raw ingest CBOR messages to disk")
	flag.StringVar(&cfg.RawLogDir, "raw-log-dir", cfg.RawLogDir, "Directory for raw ingest logs")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for session reports")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Use the simulated pose detector and keypoint stream")
	flag.Float64Var(&cfg.DebugRate, "debug-rate", cfg.DebugRate, "Simulated keypoint frames per second")
	flag.Int64Var(&cfg.ReadLimit, "read-limit", cfg.ReadLimit, "Maximum websocket message size in bytes")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.StorageDriver, cfg.StoragePath)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("storage close failed: %v", err)
		}
	}()

	registry, err := movement.NewCatalog()
	if err != nil {
		log.Fatalf("movement catalog: %v", err)
	}
	calc := rom.NewCalculator(registry)
	sessions := session.NewManager(store)
	analyzer := analysis.NewAnalyzer(calc, sessions)

	var statusMu sync.Mutex
	status := map[string]any{
		"detector": "unavailable",
		"storage":  cfg.StorageDriver,
		"ingest":   "disabled",
	}
	setStatus := func(k string, v any) {
		statusMu.Lock()
		status[k] = v
		statusMu.Unlock()
	}

	var detector pose.Detector
	var monitor *pose.Monitor
	if cfg.Debug {
		detector = simulator.NewDetector(60, 1.5)
		setStatus("detector", "simulator")
	} else {
		zmqDetector, err := pose.DialZMQ(cfg.PoseEndpoint, pose.ZMQOptions{
			Timeout:             cfg.PoseTimeout,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MinKeypointsRatio:   cfg.MinKeypointsRatio,
		})
		switch {
		case err != nil && cfg.PoseRequired:
			log.Fatalf("pose worker: %v", err)
		case err != nil:
			log.Printf("pose worker unavailable, image frames will fail: %v", err)
		default:
			defer zmqDetector.Close()
			if cfg.PoseRequired {
				pingCtx, cancel := context.WithTimeout(ctx, cfg.PoseTimeout)
				err := zmqDetector.Ping(pingCtx)
				cancel()
				if err != nil {
					log.Fatalf("pose worker %s: %v", cfg.PoseEndpoint, err)
				}
			}
			detector = zmqDetector
			monitor = pose.NewMonitor(zmqDetector, cfg.MonitorInterval)
			go monitor.Run(ctx)
			setStatus("detector", "zmq")
		}
	}

	svc := analysis.NewService(analyzer, detector)
	runner := jobs.NewRunner(ctx, store, svc, calc)

	var metrics metrics
	ingestStats := &ingest.Stats{}
	tracker := newSessionTracker(svc, &metrics, maxReportSessions)
	events := make(chan any, 64)

	var frames <-chan types.KeypointFrame
	switch {
	case cfg.IngestEndpoint != "":
		var recorder ingest.RawRecorder
		if cfg.RawLogEnabled {
			writer, err := output.NewRawLogWriter(cfg.RawLogDir, "ingest")
			if err != nil {
				log.Fatalf("failed to start raw log: %v", err)
			}
			log.Printf("recording ingest messages to %s", writer.Path())
			recorder = writer
			go func() {
				<-ctx.Done()
				if err := writer.Close(); err != nil {
					log.Printf("raw log close failed: %v", err)
				}
			}()
		}
		frames, err = ingest.Stream(ctx, cfg.IngestEndpoint, cfg.IngestLogEvery, recorder)
		if err != nil {
			log.Fatalf("failed to start ingest: %v", err)
		}
		setStatus("ingest", cfg.IngestEndpoint)
	case cfg.Debug:
		frames = simulator.Stream(ctx, "debug", "lower_back", "flexion", cfg.DebugRate)
		setStatus("ingest", "simulator")
	}

	var ingestDone sync.WaitGroup
	if frames != nil {
		ingestDone.Add(1)
		go func() {
			defer ingestDone.Done()
			ingest.Process(ctx, frames, tracker, cfg.Workers, events, ingestStats)
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := ingestStats.Snapshot()
				log.Printf("stats: analysed=%d persist_failures=%d ingest=%v ingest_failed=%v decode_failures=%v",
					svc.FramesAnalyzed(),
					svc.PersistFailures(),
					snapshot["ingest_frames_total"],
					snapshot["ingest_frames_failed_total"],
					ingest.DecodeFailures(),
				)
			}
		}
	}()

	statusFn := func() map[string]any {
		statusMu.Lock()
		defer statusMu.Unlock()
		copy := map[string]any{}
		for k, v := range status {
			copy[k] = v
		}
		if monitor != nil {
			copy["pose_worker"] = monitor.Status()
		}
		metricsPayload := metrics.snapshot()
		for k, v := range ingestStats.Snapshot() {
			metricsPayload[k] = v
		}
		metricsPayload["frames_analyzed_total"] = svc.FramesAnalyzed()
		metricsPayload["persist_failures_total"] = svc.PersistFailures()
		decodeCount, decodeNanos := ingest.DecodeTiming()
		metricsPayload["ingest_decode_total"] = decodeCount
		metricsPayload["ingest_decode_nanos_total"] = decodeNanos
		copy["metrics"] = metricsPayload
		return copy
	}

	srv := server.New(cfg, server.Deps{
		Service:  svc,
		Calc:     calc,
		Jobs:     runner,
		StatusFn: statusFn,
	})
	log.Printf("Starting ROM server at http://localhost:%d", cfg.Port)
	if err := server.Run(ctx, srv, events); err != nil {
		log.Printf("server stopped: %v", err)
		stop()
	}

	ingestDone.Wait()
	runner.Wait()

	ts := time.Now().Format("20060102_150405")
	for _, id := range tracker.sessions() {
		view, err := sessions.GetSession(context.Background(), id)
		if err != nil {
			log.Printf("report %s: %v", id, err)
			continue
		}
		name, err := output.WriteSessionReport(cfg.OutputDir, ts, id, view)
		if err != nil {
			metrics.reportsErr.Add(1)
			log.Printf("report %s: %v", id, err)
			continue
		}
		metrics.reportsOK.Add(1)
		log.Printf("wrote session report %s", name)
	}
}
