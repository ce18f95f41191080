package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

// ServiceConfig contains configuration for the measurement service.
type ServiceConfig struct {
	// Modulus and upper bound every session of this node uses.
	Modulus    *big.Int `json:"-"`
	UpperBound uint32   `json:"upper_bound"`

	// Address inbound verifier sessions are accepted on.
	ListenOn string `json:"listen_on"`

	// Worker pool size for outbound measurements.
	WorkerPoolSize int `json:"worker_pool_size"`

	// Maximum number of queued measurement jobs.
	MaxPendingJobs int `json:"max_pending_jobs"`

	// Performance monitoring interval.
	MonitoringInterval time.Duration `json:"monitoring_interval"`
}

// DefaultServiceConfig returns a conservative default configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Modulus:            RSA2048,
		UpperBound:         DefaultUpperBound,
		ListenOn:           ":9199",
		WorkerPoolSize:     1,
		MaxPendingJobs:     32,
		MonitoringInterval: 30 * time.Second,
	}
}

// JobStatus represents the status of a measurement job.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
)

func (js JobStatus) String() string {
	switch js {
	case JobStatusPending:
		return "pending"
	case JobStatusRunning:
		return "running"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MeasurementJob is one outbound proof-of-latency measurement against a
// peer.
type MeasurementJob struct {
	ID          string     `json:"id"`
	PeerAddr    string     `json:"peer_addr"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      JobStatus  `json:"status"`
	RecordID    string     `json:"record_id,omitempty"`
	Latency     uint32     `json:"latency,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ServiceStats contains performance statistics.
type ServiceStats struct {
	TotalJobs       int64     `json:"total_jobs"`
	CompletedJobs   int64     `json:"completed_jobs"`
	FailedJobs      int64     `json:"failed_jobs"`
	InboundSessions int64     `json:"inbound_sessions"`
	PendingJobs     int       `json:"pending_jobs"`
	ActiveWorkers   int       `json:"active_workers"`
	LastLatency     uint32    `json:"last_latency"`
	AverageLatency  float64   `json:"average_latency"`
	LastRecordAt    time.Time `json:"last_record_at"`
}

// PoLService manages proof-of-latency measurements: outbound prover jobs
// against remote peers, an inbound verifier listener, and the persistent
// record store.
type PoLService struct {
	config *ServiceConfig
	keys   *KeyPair
	store  *RecordStore

	// Job management
	jobs      map[string]*MeasurementJob
	jobQueue  chan *MeasurementJob
	jobsMutex sync.RWMutex

	// Worker management
	workerGroup sync.WaitGroup

	// Statistics
	stats      ServiceStats
	statsMutex sync.RWMutex

	// Control
	ctx    context.Context
	cancel context.CancelFunc

	monitorTicker *time.Ticker
}

// NewPoLService creates the service; the record store may be nil when
// persistence is not wanted.
func NewPoLService(config *ServiceConfig, keys *KeyPair, store *RecordStore) *PoLService {
	if config == nil {
		config = DefaultServiceConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &PoLService{
		config:   config,
		keys:     keys,
		store:    store,
		jobs:     make(map[string]*MeasurementJob),
		jobQueue: make(chan *MeasurementJob, config.MaxPendingJobs),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// newSession builds a session with the service-wide parameters.
func (ps *PoLService) newSession() *Session {
	return NewSession(ps.config.Modulus, ps.config.UpperBound, ps.keys)
}

// Start launches the workers, the verifier listener and the monitor.
func (ps *PoLService) Start() error {
	log.Printf("Starting proof-of-latency service with %d workers", ps.config.WorkerPoolSize)

	for i := 0; i < ps.config.WorkerPoolSize; i++ {
		ps.workerGroup.Add(1)
		go ps.runWorker(i)
	}

	if ps.config.ListenOn != "" {
		go func() {
			if err := ServeVerifier(ps.config.ListenOn, ps.newSession, ps.handleInboundRecord); err != nil {
				log.Printf("Verifier listener stopped: %v", err)
			}
		}()
	}

	ps.monitorTicker = time.NewTicker(ps.config.MonitoringInterval)
	go ps.monitorPerformance()

	log.Printf("Proof-of-latency service started")
	return nil
}

// Stop shuts the service down and waits for the workers.
func (ps *PoLService) Stop() error {
	log.Printf("Stopping proof-of-latency service...")

	ps.cancel()
	if ps.monitorTicker != nil {
		ps.monitorTicker.Stop()
	}
	ps.workerGroup.Wait()

	log.Printf("Proof-of-latency service stopped")
	return nil
}

// SubmitMeasurement queues an outbound measurement against peerAddr.
func (ps *PoLService) SubmitMeasurement(peerAddr string) (*MeasurementJob, error) {
	job := &MeasurementJob{
		ID:          measurementID(peerAddr),
		PeerAddr:    peerAddr,
		SubmittedAt: time.Now().UTC(),
		Status:      JobStatusPending,
	}

	ps.jobsMutex.Lock()
	if len(ps.jobQueue) >= ps.config.MaxPendingJobs {
		ps.jobsMutex.Unlock()
		return nil, fmt.Errorf("maximum pending jobs reached (%d)", ps.config.MaxPendingJobs)
	}
	ps.jobs[job.ID] = job
	ps.jobsMutex.Unlock()

	select {
	case ps.jobQueue <- job:
		ps.updateStats(func(stats *ServiceStats) {
			stats.TotalJobs++
			stats.PendingJobs++
		})
		return job, nil
	default:
		ps.jobsMutex.Lock()
		delete(ps.jobs, job.ID)
		ps.jobsMutex.Unlock()
		return nil, fmt.Errorf("job queue is full")
	}
}

func measurementID(peerAddr string) string {
	hasher := sha3.New256()
	hasher.Write([]byte(peerAddr))
	hasher.Write([]byte(time.Now().UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// GetJob retrieves a job by ID.
func (ps *PoLService) GetJob(jobID string) (*MeasurementJob, error) {
	ps.jobsMutex.RLock()
	defer ps.jobsMutex.RUnlock()

	job, exists := ps.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return job, nil
}

// ListJobs returns all known jobs.
func (ps *PoLService) ListJobs() []*MeasurementJob {
	ps.jobsMutex.RLock()
	defer ps.jobsMutex.RUnlock()

	jobs := make([]*MeasurementJob, 0, len(ps.jobs))
	for _, job := range ps.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// GetStats returns current service statistics.
func (ps *PoLService) GetStats() ServiceStats {
	ps.statsMutex.RLock()
	defer ps.statsMutex.RUnlock()
	return ps.stats
}

func (ps *PoLService) updateStats(update func(*ServiceStats)) {
	ps.statsMutex.Lock()
	defer ps.statsMutex.Unlock()
	update(&ps.stats)
}

func (ps *PoLService) runWorker(id int) {
	defer ps.workerGroup.Done()

	log.Printf("Measurement worker %d started", id)
	defer log.Printf("Measurement worker %d stopped", id)

	for {
		select {
		case <-ps.ctx.Done():
			return
		case job := <-ps.jobQueue:
			ps.processJob(id, job)
		}
	}
}

func (ps *PoLService) processJob(workerID int, job *MeasurementJob) {
	log.Printf("Worker %d measuring latency to %s", workerID, job.PeerAddr)

	now := time.Now().UTC()
	job.StartedAt = &now
	job.Status = JobStatusRunning

	ps.updateStats(func(stats *ServiceStats) {
		stats.ActiveWorkers++
		stats.PendingJobs--
	})

	record, err := RunProver(job.PeerAddr, ps.newSession())

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		ps.updateStats(func(stats *ServiceStats) {
			stats.FailedJobs++
			stats.ActiveWorkers--
		})
		log.Printf("Worker %d measurement to %s failed: %v", workerID, job.PeerAddr, err)
		return
	}

	job.Status = JobStatusCompleted
	job.Latency = record.LatencyEstimate()
	if ps.store != nil {
		id, err := ps.store.Save(record)
		if err != nil {
			log.Printf("Warning: failed to persist record: %v", err)
		} else {
			job.RecordID = id
		}
	}

	ps.updateStats(func(stats *ServiceStats) {
		stats.CompletedJobs++
		stats.ActiveWorkers--
		stats.LastLatency = job.Latency
		stats.LastRecordAt = completedAt

		if stats.CompletedJobs == 1 {
			stats.AverageLatency = float64(job.Latency)
		} else {
			// Exponential moving average
			alpha := 0.1
			stats.AverageLatency = stats.AverageLatency*(1-alpha) + float64(job.Latency)*alpha
		}
	})

	log.Printf("Worker %d completed measurement to %s: %d squarings", workerID, job.PeerAddr, job.Latency)
}

// handleInboundRecord persists records produced by inbound verifier
// sessions.
func (ps *PoLService) handleInboundRecord(record *PoLRecord) {
	ps.updateStats(func(stats *ServiceStats) {
		stats.InboundSessions++
		stats.LastLatency = record.LatencyEstimate()
		stats.LastRecordAt = time.Now().UTC()
	})
	if ps.store != nil {
		if _, err := ps.store.Save(record); err != nil {
			log.Printf("Warning: failed to persist inbound record: %v", err)
		}
	}
}

func (ps *PoLService) monitorPerformance() {
	for {
		select {
		case <-ps.ctx.Done():
			return
		case <-ps.monitorTicker.C:
			stats := ps.GetStats()
			log.Printf("PoL Stats - Total: %d, Completed: %d, Failed: %d, Inbound: %d, Pending: %d, Last: %d, Avg: %.0f",
				stats.TotalJobs, stats.CompletedJobs, stats.FailedJobs, stats.InboundSessions,
				stats.PendingJobs, stats.LastLatency, stats.AverageLatency)
		}
	}
}
