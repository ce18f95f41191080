package cmd

import (
	"testing"
	"time"
)

func TestJobStatusStrings(t *testing.T) {
	statuses := map[JobStatus]string{
		JobStatusPending:   "pending",
		JobStatusRunning:   "running",
		JobStatusCompleted: "completed",
		JobStatusFailed:    "failed",
	}
	for status, want := range statuses {
		if status.String() != want {
			t.Errorf("Status %d: expected %q, got %q", status, want, status.String())
		}
	}
}

func TestDefaultServiceConfig(t *testing.T) {
	config := DefaultServiceConfig()
	if config.Modulus == nil || config.Modulus.BitLen() != 2048 {
		t.Error("Default modulus should be the 2048-bit challenge modulus")
	}
	if config.UpperBound == 0 {
		t.Error("Default upper bound should be non-zero")
	}
	if config.WorkerPoolSize < 1 {
		t.Error("Worker pool needs at least one worker")
	}
}

func TestSubmitMeasurementQueue(t *testing.T) {
	config := DefaultServiceConfig()
	config.ListenOn = "" // no inbound listener in this test
	config.MaxPendingJobs = 2
	service := NewPoLService(config, nil, nil)
	// Not started: jobs stay queued.

	first, err := service.SubmitMeasurement("192.0.2.1:9199")
	if err != nil {
		t.Fatalf("SubmitMeasurement failed: %v", err)
	}
	if first.Status != JobStatusPending {
		t.Errorf("Expected pending status, got %s", first.Status)
	}

	if _, err := service.SubmitMeasurement("192.0.2.2:9199"); err != nil {
		t.Fatalf("Second SubmitMeasurement failed: %v", err)
	}
	if _, err := service.SubmitMeasurement("192.0.2.3:9199"); err == nil {
		t.Error("Expected an error once the job limit is reached")
	}

	stats := service.GetStats()
	if stats.TotalJobs != 2 || stats.PendingJobs != 2 {
		t.Errorf("Expected 2 total and 2 pending jobs, got %d/%d", stats.TotalJobs, stats.PendingJobs)
	}

	job, err := service.GetJob(first.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.PeerAddr != "192.0.2.1:9199" {
		t.Errorf("Unexpected peer address %s", job.PeerAddr)
	}

	if _, err := service.GetJob("missing"); err == nil {
		t.Error("Expected an error for an unknown job ID")
	}
}

func TestHandleInboundRecordStats(t *testing.T) {
	service := NewPoLService(DefaultServiceConfig(), nil, nil)

	record := &PoLRecord{
		Prover:   &VDFProofWire{Iterations: 1000},
		Verifier: &VDFProofWire{Iterations: 900},
	}
	service.handleInboundRecord(record)

	stats := service.GetStats()
	if stats.InboundSessions != 1 {
		t.Errorf("Expected 1 inbound session, got %d", stats.InboundSessions)
	}
	if stats.LastLatency != 100 {
		t.Errorf("Expected last latency 100, got %d", stats.LastLatency)
	}
	if time.Since(stats.LastRecordAt) > time.Minute {
		t.Error("LastRecordAt should be recent")
	}
}
