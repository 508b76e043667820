package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogQuery logs query-lifecycle events
	LogQueryReceived(ctx context.Context, correlationID, query string) error
	LogQueryClassified(ctx context.Context, correlationID, category string, confidence float64) error
	LogQueryCompleted(ctx context.Context, correlationID string, duration time.Duration) error
	LogQueryFailed(ctx context.Context, correlationID string, err error) error

	// LogTool logs tool-execution events
	LogToolExecuted(ctx context.Context, correlationID, tool string, duration time.Duration) error
	LogToolFailed(ctx context.Context, correlationID, tool string, err error) error
	LogToolRetried(ctx context.Context, correlationID, tool string, attempt int) error

	// LogFallbackTriggered logs when the hybrid orchestrator falls back to
	// the static vector_search plan after an upstream exception.
	LogFallbackTriggered(ctx context.Context, correlationID string, reason string) error

	// LogEmbeddingFailed logs a failed embedding generation request.
	LogEmbeddingFailed(ctx context.Context, textHash string, err error) error

	// LogVectorStoreDegraded logs entry into/exit from the degraded state.
	LogVectorStoreDegraded(ctx context.Context, namespace string, degraded bool) error

	// LogKnowledgeGraphRebuilt logs a completed knowledge-graph rebuild.
	LogKnowledgeGraphRebuilt(ctx context.Context, entityCount, relationCount int, duration time.Duration) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogQueryReceived logs the arrival of a new query.
func (l *auditLogger) LogQueryReceived(ctx context.Context, correlationID, query string) error {
	event := NewEvent(EventQueryReceived).
		WithCorrelationID(correlationID).
		WithResult(ResultPending).
		WithMetadata("query", query).
		WithDescription(fmt.Sprintf("query %s received", correlationID))

	return l.Log(ctx, event)
}

// LogQueryClassified logs the classifier's category decision for a query.
func (l *auditLogger) LogQueryClassified(ctx context.Context, correlationID, category string, confidence float64) error {
	event := NewEvent(EventQueryClassified).
		WithCorrelationID(correlationID).
		WithResult(ResultSuccess).
		WithMetadata("category", category).
		WithMetadata("confidence", confidence).
		WithDescription(fmt.Sprintf("query %s classified as %s", correlationID, category))

	return l.Log(ctx, event)
}

// LogQueryCompleted logs successful completion of a hybrid query.
func (l *auditLogger) LogQueryCompleted(ctx context.Context, correlationID string, duration time.Duration) error {
	event := NewEvent(EventQueryCompleted).
		WithCorrelationID(correlationID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("query %s completed", correlationID))

	return l.Log(ctx, event)
}

// LogQueryFailed logs a query that could not be served, even after fallback.
func (l *auditLogger) LogQueryFailed(ctx context.Context, correlationID string, err error) error {
	event := NewEvent(EventQueryFailed).
		WithCorrelationID(correlationID).
		WithError(err, "query_error").
		WithDescription(fmt.Sprintf("query %s failed", correlationID))

	return l.Log(ctx, event)
}

// LogToolExecuted logs a single successful tool execution.
func (l *auditLogger) LogToolExecuted(ctx context.Context, correlationID, tool string, duration time.Duration) error {
	event := NewEvent(EventToolExecuted).
		WithCorrelationID(correlationID).
		WithAction(tool).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("tool %s executed for %s", tool, correlationID))

	return l.Log(ctx, event)
}

// LogToolFailed logs a tool execution that exhausted its retries.
func (l *auditLogger) LogToolFailed(ctx context.Context, correlationID, tool string, err error) error {
	event := NewEvent(EventToolFailed).
		WithCorrelationID(correlationID).
		WithAction(tool).
		WithError(err, "tool_error").
		WithDescription(fmt.Sprintf("tool %s failed for %s", tool, correlationID))

	return l.Log(ctx, event)
}

// LogToolRetried logs a single retry attempt for a tool execution.
func (l *auditLogger) LogToolRetried(ctx context.Context, correlationID, tool string, attempt int) error {
	event := NewEvent(EventToolRetried).
		WithCorrelationID(correlationID).
		WithAction(tool).
		WithResult(ResultPending).
		WithMetadata("attempt", attempt).
		WithDescription(fmt.Sprintf("tool %s retry %d for %s", tool, attempt, correlationID))

	return l.Log(ctx, event)
}

// LogFallbackTriggered logs the hybrid engine falling back to the static
// vector_search plan after an upstream exception.
func (l *auditLogger) LogFallbackTriggered(ctx context.Context, correlationID string, reason string) error {
	event := NewEvent(EventFallbackTriggered).
		WithCorrelationID(correlationID).
		WithResult(ResultSuccess).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("query %s fell back to static plan: %s", correlationID, reason))

	return l.Log(ctx, event)
}

// LogEmbeddingFailed logs a failed embedding generation request.
func (l *auditLogger) LogEmbeddingFailed(ctx context.Context, textHash string, err error) error {
	event := NewEvent(EventEmbeddingFailed).
		WithError(err, "embedding_error").
		WithMetadata("text_hash", textHash).
		WithDescription(fmt.Sprintf("embedding generation failed for %s", textHash))

	return l.Log(ctx, event)
}

// LogVectorStoreDegraded logs entry into/exit from the degraded state for a
// namespace's embedding pipeline.
func (l *auditLogger) LogVectorStoreDegraded(ctx context.Context, namespace string, degraded bool) error {
	event := NewEvent(EventVectorStoreDegraded).
		WithResource(namespace, "namespace").
		WithResult(ResultSuccess).
		WithMetadata("degraded", degraded).
		WithDescription(fmt.Sprintf("namespace %s degraded=%v", namespace, degraded))

	return l.Log(ctx, event)
}

// LogKnowledgeGraphRebuilt logs a completed knowledge-graph rebuild.
func (l *auditLogger) LogKnowledgeGraphRebuilt(ctx context.Context, entityCount, relationCount int, duration time.Duration) error {
	event := NewEvent(EventKnowledgeGraphRebuilt).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("entity_count", entityCount).
		WithMetadata("relation_count", relationCount).
		WithDescription(fmt.Sprintf("knowledge graph rebuilt: %d entities, %d relations", entityCount, relationCount))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value("correlation_id").(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, "correlation_id", id)
}

// GenerateCorrelationID generates a new correlation ID for a request.
func GenerateCorrelationID() string {
	return uuid.NewString()
}
