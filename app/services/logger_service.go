package services

import (
	"SmartIMS/app/config"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggerService handles application logging. Entries go to the console and to
// a YYYY-MM-DD.log file in the log directory, rotated when the day changes.
type LoggerService struct {
	logDir     string
	console    io.Writer
	logger     *logrus.Logger
	mu         sync.Mutex
	logFile    *os.File
	currentDay string
	now        func() time.Time
}

// NewLoggerService creates a logger writing to stdout and the daily log file
func NewLoggerService(cfg config.LogConfig) *LoggerService {
	return NewLoggerServiceWithConsole(cfg, os.Stdout)
}

// NewLoggerServiceWithConsole creates a logger whose console side writes to w.
// The stdio MCP server passes os.Stderr so stdout stays reserved for JSON-RPC.
func NewLoggerServiceWithConsole(cfg config.LogConfig, w io.Writer) *LoggerService {
	s := &LoggerService{
		logDir:  cfg.Dir,
		console: w,
		logger:  logrus.New(),
		now:     time.Now,
	}

	if strings.EqualFold(cfg.Format, "json") {
		s.logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		s.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	s.logger.SetLevel(level)
	s.logger.SetOutput(s)

	if s.logDir != "" {
		if err := os.MkdirAll(s.logDir, 0755); err != nil {
			fmt.Fprintf(w, "Warning: could not create logs directory %s: %v\n", s.logDir, err)
			s.logDir = ""
		}
	}

	s.LogInfo("Logger initialized", fmt.Sprintf("Log directory: %s", s.logDir))
	return s
}

// Logger returns the underlying logrus logger for components that log with fields
func (s *LoggerService) Logger() *logrus.Logger {
	return s.logger
}

// Write implements io.Writer: console first, then today's file
func (s *LoggerService) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.console != nil {
		s.console.Write(p)
	}
	if s.logDir == "" {
		return len(p), nil
	}
	if err := s.rotateLogFile(); err != nil {
		return len(p), nil
	}
	return s.logFile.Write(p)
}

// rotateLogFile opens the file for the current day; callers hold mu
func (s *LoggerService) rotateLogFile() error {
	today := s.now().Format("2006-01-02")
	if s.currentDay == today && s.logFile != nil {
		return nil
	}

	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}

	path := filepath.Join(s.logDir, today+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	s.logFile = file
	s.currentDay = today
	return nil
}

// LogInfo logs an informational message
func (s *LoggerService) LogInfo(message string, details ...string) {
	s.entry(details).Info(message)
}

// LogWarning logs a warning message
func (s *LoggerService) LogWarning(message string, details ...string) {
	s.entry(details).Warn(message)
}

// LogError logs an error message
func (s *LoggerService) LogError(message string, err error, details ...string) {
	e := s.entry(details)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}

// LogPanic logs a recovered panic with its stack trace
func (s *LoggerService) LogPanic(recovered interface{}) {
	s.logger.WithFields(logrus.Fields{
		"panic": fmt.Sprintf("%v", recovered),
		"stack": string(debug.Stack()),
	}).Error("Recovered from panic")
}

// RecoverPanic is deferred at the top of goroutines
func (s *LoggerService) RecoverPanic() {
	if r := recover(); r != nil {
		s.LogPanic(r)
	}
}

func (s *LoggerService) entry(details []string) *logrus.Entry {
	e := logrus.NewEntry(s.logger)
	if len(details) > 0 && details[0] != "" {
		e = e.WithField("details", details[0])
	}
	return e
}

// GetLogDirectory returns the directory where logs are stored
func (s *LoggerService) GetLogDirectory() string {
	return s.logDir
}

// GetTodayLogPath returns the path to today's log file
func (s *LoggerService) GetTodayLogPath() string {
	return filepath.Join(s.logDir, s.now().Format("2006-01-02")+".log")
}

// CleanOldLogs removes log files older than daysToKeep and returns how many were removed
func (s *LoggerService) CleanOldLogs(daysToKeep int) (int, error) {
	if s.logDir == "" {
		return 0, nil
	}
	files, err := os.ReadDir(s.logDir)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().AddDate(0, 0, -daysToKeep)
	removed := 0
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".log" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.logDir, file.Name())
			if err := os.Remove(path); err == nil {
				removed++
				s.LogInfo("Deleted old log file", path)
			}
		}
	}
	return removed, nil
}

// Close closes the log file
func (s *LoggerService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
}
