package core

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ScreenLog is the in-memory tail of operator-facing log lines, a rolling
// buffer of the last 500 lines plus warning and error counters.
type ScreenLog struct {
	mu       sync.RWMutex
	Log      []string
	Warnings int
	Errors   int
}

var screenLog = &ScreenLog{}

func (s *ScreenLog) append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Log = append(s.Log, time.Now().UTC().Format("2006-01-02 15:04:05")+" "+line)
	const maxEntries = 500
	if len(s.Log) > maxEntries {
		s.Log = s.Log[len(s.Log)-maxEntries:]
	}
}

// Snapshot returns a copy of the current log tail and counters.
func (s *ScreenLog) Snapshot() ([]string, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.Log))
	copy(out, s.Log)
	return out, s.Warnings, s.Errors
}

func showInfo(label, msg string) {
	printLogOnScreen(formatLine(label, msg), "info")
	screenLog.append(formatLine(label, msg))
}

func showDebug(label, msg string, level int) {
	if System.Debug < level {
		return
	}
	line := "[DEBUG] " + formatLine(label, msg)
	printLogOnScreen(line, "debug")
	screenLog.append(line)
}

func showWarning(label, msg string) {
	line := fmt.Sprintf("[%s] [WARNING] %s", System.Name, formatLine(label, msg))
	printLogOnScreen(line, "warning")
	screenLog.mu.Lock()
	screenLog.Warnings++
	screenLog.mu.Unlock()
	screenLog.append(line)
}

// ShowError prints an operator-facing error line. It never swallows err:
// callers still return it (or a wrapped form) to their own caller.
func ShowError(label string, err error) {
	line := fmt.Sprintf("[%s] [ERROR] %s: %s", System.Name, label, err)
	printLogOnScreen(line, "error")
	screenLog.mu.Lock()
	screenLog.Errors++
	screenLog.mu.Unlock()
	screenLog.append(line)
}

func formatLine(label, msg string) string {
	const pad = 23
	if label == "" {
		return msg
	}
	spacer := ""
	if len(label) < pad {
		spacer = strings.Repeat(" ", pad-len(label))
	}
	return fmt.Sprintf("[%s] %s:%s%s", System.Name, label, spacer, msg)
}

func printLogOnScreen(logMsg, logType string) {
	var color string
	switch logType {
	case "debug":
		color = "\033[35m"
	case "warning":
		color = "\033[33m"
	case "error":
		color = "\033[31m"
	default:
		color = "\033[0m"
	}

	if runtime.GOOS == "windows" {
		log.Println(logMsg)
		return
	}
	fmt.Print(color)
	log.Println(logMsg)
	fmt.Print("\033[0m")
}
