package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"yqhp/jobflow/pkg/types"
	"yqhp/jobflow/pkg/utils"
)

// Config configures the file ledger.
type Config struct {
	// Path is the ledger file. Empty disables the file ledger.
	Path       string `yaml:"path" env:"JF_LEDGER_PATH"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the default ledger settings.
func DefaultConfig() Config {
	return Config{
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// FileLedger appends one JSON line per task to a rotated file.
type FileLedger struct {
	mu       sync.Mutex
	writer   *lumberjack.Logger
	logger   *zap.Logger
	stats    *durationStats
	runID    string
	workflow string
}

// NewFileLedger creates a file ledger. The file is opened on first write.
func NewFileLedger(cfg Config, logger *zap.Logger) (*FileLedger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileLedger{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
		logger: logger,
		stats:  newDurationStats(),
	}, nil
}

// Begin implements Ledger.
func (l *FileLedger) Begin(wf *types.Workflow) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.runID = uuid.NewString()
	l.workflow = ""
	if wf != nil {
		l.workflow = wf.Name
	}
	l.stats.reset()
	return l.runID, nil
}

// Record implements Ledger.
func (l *FileLedger) Record(tc *types.TaskContext) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := newEntry(l.runID, l.workflow, tc)
	line, err := utils.ToJSONBytes(entry)
	if err != nil {
		return fmt.Errorf("encode ledger entry for task %s: %w", entry.Task, err)
	}
	line = append(line, '\n')
	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("write ledger entry for task %s: %w", entry.Task, err)
	}

	l.stats.record(tc.Duration(), tc.Status == types.TaskStatusFailed)
	return nil
}

// Summary implements Ledger.
func (l *FileLedger) Summary() Summary {
	return l.stats.summary()
}

// Close logs the run summary and closes the file.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stats.summary()
	l.logger.Info("ledger summary",
		zap.String("run_id", l.runID),
		zap.String("workflow", l.workflow),
		zap.Int64("tasks", s.Count),
		zap.Int64("failed", s.Failed),
		zap.Duration("min", s.Min),
		zap.Duration("p50", s.P50),
		zap.Duration("p90", s.P90),
		zap.Duration("max", s.Max))
	return l.writer.Close()
}
