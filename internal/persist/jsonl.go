package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/quantedge/options-engine/pkg/types"
	"go.uber.org/zap"
)

// FileStore journals records as JSON lines, one file per record type.
// Writes are flushed per record; files are only ever appended to.
type FileStore struct {
	logger *zap.Logger

	mu    sync.Mutex
	files map[string]*os.File
	dir   string
}

// NewFileStore creates the journal directory and opens it for appending.
func NewFileStore(logger *zap.Logger, dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	return &FileStore{
		logger: logger.Named("journal"),
		files:  make(map[string]*os.File),
		dir:    dir,
	}, nil
}

func (s *FileStore) append(name string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		var err error
		f, err = os.OpenFile(filepath.Join(s.dir, name+".jsonl"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open journal %s: %w", name, err)
		}
		s.files[name] = f
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", name, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s record: %w", name, err)
	}
	return nil
}

func (s *FileStore) AppendTrade(_ context.Context, trade types.Trade) error {
	return s.append("trades", trade)
}

func (s *FileStore) AppendSignal(_ context.Context, signal types.Signal) error {
	return s.append("signals", signal)
}

func (s *FileStore) AppendRiskEvent(_ context.Context, event types.RiskEvent) error {
	return s.append("risk_events", event)
}

func (s *FileStore) AppendPerformance(_ context.Context, snap types.PerformanceSnapshot) error {
	return s.append("performance", snap)
}

// Close closes all journal files.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close journal %s: %w", name, err)
		}
		delete(s.files, name)
	}
	return firstErr
}
