// Package logging provides config-driven categorized file-based logging for moltbot.
// Logs are written to <data-dir>/logs/ with separate files per category.
// Logging is controlled by the logging section of the agent config - when
// disabled, every call is a silent no-op.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot          Category = "boot"          // Startup/initialization
	CategoryHeartbeat     Category = "heartbeat"     // Heartbeat cycle execution
	CategoryStrategy      Category = "strategy"      // Post/comment/skip decisions
	CategoryIntel         Category = "intel"         // Intelligence orchestration and cache
	CategoryTrends        Category = "trends"        // Trend tracker
	CategoryRivals        Category = "rivals"        // Competitor tracker
	CategoryOpportunities Category = "opportunities" // Opportunity finder
	CategoryPlatform      Category = "platform"      // Platform API calls
	CategoryBrain         Category = "brain"         // Content generation calls
	CategoryStore         Category = "store"         // State file and archive operations
	CategoryRateLimit     Category = "ratelimit"     // Rate limiter checks and records
)

// Settings mirrors the relevant parts of config.LoggingConfig
// to avoid a circular import.
type Settings struct {
	Enabled    bool
	Level      string
	Categories map[string]bool
	JSONFormat bool
}

// StructuredLogEntry represents a JSON log entry.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers    = make(map[Category]*Logger)
	loggersMu  sync.RWMutex
	logsDir    string
	settings   Settings
	settingsMu sync.RWMutex
	logLevel   int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory from the agent config.
// Should be called once at startup with the data directory.
func Initialize(dataDir string, s Settings) error {
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	settingsMu.Lock()
	settings = s
	logLevel = parseLevel(s.Level)
	settingsMu.Unlock()

	if !s.Enabled {
		return nil // Silent no-op in production mode
	}

	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== moltbot logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", s.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Reconfigure applies new settings at runtime (config hot-reload).
func Reconfigure(s Settings) {
	settingsMu.Lock()
	settings = s
	logLevel = parseLevel(s.Level)
	settingsMu.Unlock()
}

// IsEnabled returns whether logging is enabled at all.
func IsEnabled() bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settings.Enabled
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	settingsMu.RLock()
	defer settingsMu.RUnlock()

	if !settings.Enabled {
		return false
	}
	if settings.Categories == nil {
		return true // All enabled by default
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}
	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix for easy rotation
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg) // Fallback to text
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) write(level int, tag, msg string) {
	if l.logger == nil {
		return
	}
	settingsMu.RLock()
	jsonFormat := settings.JSONFormat
	min := logLevel
	settingsMu.RUnlock()

	if min > level {
		return
	}
	if jsonFormat {
		l.logJSON(tag, msg)
	} else {
		l.logger.Printf("[%s] %s", tag, msg)
	}
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", fmt.Sprintf(format, args...))
}

// StructuredLog writes a fully structured log entry with custom fields.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	settingsMu.RLock()
	jsonFormat := settings.JSONFormat
	settingsMu.RUnlock()

	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	if jsonFormat {
		data, err := json.Marshal(entry)
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootError logs error to the boot category
func BootError(format string, args ...interface{}) {
	Get(CategoryBoot).Error(format, args...)
}

// Heartbeat logs to the heartbeat category
func Heartbeat(format string, args ...interface{}) {
	Get(CategoryHeartbeat).Info(format, args...)
}

// HeartbeatDebug logs debug to the heartbeat category
func HeartbeatDebug(format string, args ...interface{}) {
	Get(CategoryHeartbeat).Debug(format, args...)
}

// HeartbeatError logs error to the heartbeat category
func HeartbeatError(format string, args ...interface{}) {
	Get(CategoryHeartbeat).Error(format, args...)
}

// Strategy logs to the strategy category
func Strategy(format string, args ...interface{}) {
	Get(CategoryStrategy).Info(format, args...)
}

// Intel logs to the intel category
func Intel(format string, args ...interface{}) {
	Get(CategoryIntel).Info(format, args...)
}

// IntelDebug logs debug to the intel category
func IntelDebug(format string, args ...interface{}) {
	Get(CategoryIntel).Debug(format, args...)
}

// IntelWarn logs warning to the intel category
func IntelWarn(format string, args ...interface{}) {
	Get(CategoryIntel).Warn(format, args...)
}

// Trends logs to the trends category
func Trends(format string, args ...interface{}) {
	Get(CategoryTrends).Info(format, args...)
}

// Rivals logs to the rivals category
func Rivals(format string, args ...interface{}) {
	Get(CategoryRivals).Info(format, args...)
}

// RivalsWarn logs warning to the rivals category
func RivalsWarn(format string, args ...interface{}) {
	Get(CategoryRivals).Warn(format, args...)
}

// Opportunities logs to the opportunities category
func Opportunities(format string, args ...interface{}) {
	Get(CategoryOpportunities).Info(format, args...)
}

// Platform logs to the platform category
func Platform(format string, args ...interface{}) {
	Get(CategoryPlatform).Info(format, args...)
}

// PlatformDebug logs debug to the platform category
func PlatformDebug(format string, args ...interface{}) {
	Get(CategoryPlatform).Debug(format, args...)
}

// PlatformWarn logs warning to the platform category
func PlatformWarn(format string, args ...interface{}) {
	Get(CategoryPlatform).Warn(format, args...)
}

// Brain logs to the brain category
func Brain(format string, args ...interface{}) {
	Get(CategoryBrain).Info(format, args...)
}

// BrainWarn logs warning to the brain category
func BrainWarn(format string, args ...interface{}) {
	Get(CategoryBrain).Warn(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs error to the store category
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// RateLimit logs to the ratelimit category
func RateLimit(format string, args ...interface{}) {
	Get(CategoryRateLimit).Info(format, args...)
}

// RateLimitDebug logs debug to the ratelimit category
func RateLimitDebug(format string, args ...interface{}) {
	Get(CategoryRateLimit).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
