package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tivoli-arcade/gokart/internal/influx"
	"github.com/tivoli-arcade/gokart/internal/logging"
	"github.com/tivoli-arcade/gokart/internal/session"
	"github.com/tivoli-arcade/gokart/internal/sim"
	"github.com/tivoli-arcade/gokart/internal/worker"
	"github.com/tivoli-arcade/gokart/pkg/core"
)

// StatusFileName is written inside Dependencies.StatusDir.
const StatusFileName = "status.json"

// QueueReporter reports buffered handler queue depths per command.
type QueueReporter interface {
	QueueDepths() map[string]int
}

// DropCounter reports messages discarded by a lossy sink.
type DropCounter interface {
	Dropped() uint64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sim           *sim.Simulation
	Session       *session.Context
	LogManager    *logging.SlogManager
	Dispatcher    QueueReporter
	WorkerManager *worker.Manager

	// Optional
	Influx *influx.Manager
	Stream DropCounter

	StatusDir string
	Interval  time.Duration
}

// Status is one snapshot of the running service.
type Status struct {
	Time           time.Time      `json:"time"`
	Session        *core.Session  `json:"session,omitempty"`
	Sim            sim.Snapshot   `json:"sim"`
	QueueDepths    map[string]int `json:"queueDepths"`
	PendingSamples int            `json:"pendingSamples"`
	DroppedSamples uint64         `json:"droppedSamples"`
	PointsWritten  uint64         `json:"pointsWritten"`
	StreamDropped  uint64         `json:"streamDropped"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status, plus indented JSON renderings
// of the queue and telemetry sections when asked for.
func (s *Service) GetProgramStatus(queues, telemetry bool) (output []string, status Status) {
	status = Status{
		Time: time.Now(),
		Sim:  s.deps.Sim.Snapshot(),
	}
	if s.deps.Session != nil {
		if cur, ok := s.deps.Session.Current(); ok {
			status.Session = &cur
		}
	}
	if s.deps.Dispatcher != nil {
		status.QueueDepths = s.deps.Dispatcher.QueueDepths()
	}
	if s.deps.WorkerManager != nil {
		status.PendingSamples = s.deps.WorkerManager.PendingSamples()
		status.DroppedSamples = s.deps.WorkerManager.DroppedSamples()
	}
	if s.deps.Influx != nil {
		status.PointsWritten = s.deps.Influx.Written()
	}
	if s.deps.Stream != nil {
		status.StreamDropped = s.deps.Stream.Dropped()
	}

	if queues {
		output = append(output, indent(map[string]any{
			"queueDepths":    status.QueueDepths,
			"pendingSamples": status.PendingSamples,
		}))
	}
	if telemetry {
		output = append(output, indent(map[string]any{
			"droppedSamples": status.DroppedSamples,
			"pointsWritten":  status.PointsWritten,
			"streamDropped":  status.StreamDropped,
		}))
	}
	return output, status
}

func indent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}

// ServeHTTP answers with the current status as JSON for the debug overlay.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, status := s.GetProgramStatus(false, false)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.deps.LogManager.WriteLog("monitor:ServeHTTP", err.Error(), "WARN")
	}
}

// writeStatus replaces the status file contents with the current status.
func (s *Service) writeStatus(f *os.File) error {
	_, status := s.GetProgramStatus(false, false)
	b, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate status file: %w", err)
	}
	if _, err := f.WriteAt(append(b, '\n'), 0); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		f, err := os.Create(filepath.Join(s.deps.StatusDir, StatusFileName))
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if statusFile == nil {
					continue
				}
				if err := s.writeStatus(statusFile); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
