// Package logging owns log output configuration for the gateway, including
// the optional debug capture file that records full request/response
// payloads and SSE events.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	debugFile     *os.File
	debugFilePath string
	debugLogger   *log.Logger
	mu            sync.Mutex
	debugEnabled  bool
)

// GetDebugLogPath returns the path to the debug capture file.
func GetDebugLogPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".llm-router", "logs", "debug.log")
}

// ConfigureForService configures logging for normal service operation.
// Logs go to stdout.
func ConfigureForService() {
	mu.Lock()
	defer mu.Unlock()

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)
}

// ConfigureQuiet suppresses all log output (discard mode).
func ConfigureQuiet() {
	mu.Lock()
	defer mu.Unlock()

	log.SetOutput(io.Discard)
}

// EnableDebugLogging enables detailed request/response capture to debug.log.
func EnableDebugLogging() error {
	mu.Lock()
	defer mu.Unlock()

	debugFilePath = GetDebugLogPath()
	logDir := filepath.Dir(debugFilePath)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create debug log directory: %w", err)
	}

	// Rotate if it's too large (>50MB, debug captures grow fast)
	if info, err := os.Stat(debugFilePath); err == nil {
		if info.Size() > 50*1024*1024 {
			rotateDebugLog()
		}
	}

	f, err := os.OpenFile(debugFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open debug log file: %w", err)
	}

	debugFile = f
	debugEnabled = true
	debugLogger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)

	debugLogger.Printf("=== Debug session started ===")

	return nil
}

// DisableDebugLogging disables detailed capture and closes the file.
func DisableDebugLogging() {
	mu.Lock()
	defer mu.Unlock()

	debugEnabled = false
	if debugFile != nil {
		debugLogger.Printf("=== Debug session ended ===")
		debugFile.Close()
		debugFile = nil
		debugLogger = nil
	}
}

// IsDebugEnabled returns true if debug capture is enabled.
func IsDebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugEnabled
}

// LogDebugRequestRaw logs raw request/response data to the debug log.
// Callers must mask secrets before handing data over.
func LogDebugRequestRaw(direction string, endpoint string, data []byte) {
	mu.Lock()
	defer mu.Unlock()

	if !debugEnabled || debugLogger == nil {
		return
	}

	// Pretty-print if it's JSON
	var prettyJSON interface{}
	if err := json.Unmarshal(data, &prettyJSON); err == nil {
		jsonData, _ := json.MarshalIndent(prettyJSON, "", "  ")
		debugLogger.Printf("[%s] %s\n%s\n", direction, endpoint, string(jsonData))
	} else {
		debugLogger.Printf("[%s] %s\n%s\n", direction, endpoint, string(data))
	}
}

// LogDebugSSE logs an SSE event to the debug log.
func LogDebugSSE(direction string, eventType string, data string) {
	mu.Lock()
	defer mu.Unlock()

	if !debugEnabled || debugLogger == nil {
		return
	}

	debugLogger.Printf("[%s SSE] event: %s\ndata: %s\n", direction, eventType, data)
}

// LogDebugMessage logs a simple message to the debug log.
func LogDebugMessage(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if !debugEnabled || debugLogger == nil {
		return
	}

	debugLogger.Printf(format, args...)
}

// rotateDebugLog rotates the debug log file by renaming it with a timestamp.
func rotateDebugLog() {
	if debugFilePath == "" {
		return
	}

	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := debugFilePath + "." + timestamp

	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
		debugLogger = nil
	}

	os.Rename(debugFilePath, rotatedPath)

	cleanOldDebugLogs()
}

// cleanOldDebugLogs removes old debug log files, keeping the 3 most recent.
func cleanOldDebugLogs() {
	logDir := filepath.Dir(debugFilePath)
	pattern := filepath.Join(logDir, "debug.log.*")

	files, err := filepath.Glob(pattern)
	if err != nil || len(files) <= 3 {
		return
	}

	// Timestamp suffixes sort oldest-first
	for i := 0; i < len(files)-3; i++ {
		os.Remove(files[i])
	}
}
