// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging configures the process-wide logrus instance the cascade
// engine's server logs through: a line format carrying the request, cascade,
// tier, and function correlation fields, optional lumberjack file rotation,
// and a size cap on the log directory.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce      sync.Once
	writerMu       sync.Mutex
	logWriter      *lumberjack.Logger
	ginInfoWriter  *io.PipeWriter
	ginErrorWriter *io.PipeWriter

	cleanerMu     sync.Mutex
	cleanerCancel chan struct{}
)

// correlationFields are the entry fields promoted into the bracketed prefix,
// in the order they print. Everything else in entry.Data trails as key=value.
var correlationFields = []string{"request_id", "cascade_id", "tier", "function_id"}

// Formatter renders one line per entry:
//
//	[2026-08-01 09:15:02] [info ] [req_4f2c | cas_91ab | generative | sum] escalating after code tier failure
//
// Correlation slots with no value collapse away, so entries logged outside a
// cascade stay short.
type Formatter struct{}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	buffer.WriteString(fmt.Sprintf("[%s] [%-5s]", entry.Time.Format("2006-01-02 15:04:05"), level))

	var corr []string
	for _, k := range correlationFields {
		if v, ok := entry.Data[k].(string); ok && v != "" {
			corr = append(corr, v)
		}
	}
	if len(corr) > 0 {
		buffer.WriteString(" [" + strings.Join(corr, " | ") + "]")
	}

	buffer.WriteString(" " + strings.TrimRight(entry.Message, "\r\n"))

	extra := make([]string, 0, len(entry.Data))
	for k, v := range entry.Data {
		if isCorrelationField(k) {
			continue
		}
		extra = append(extra, fmt.Sprintf("%s=%v", k, v))
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		buffer.WriteString(" | " + strings.Join(extra, ", "))
	}

	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

func isCorrelationField(k string) bool {
	for _, c := range correlationFields {
		if k == c {
			return true
		}
	}
	return false
}

// WithCascade returns an entry carrying the standard correlation fields, the
// one constructor handlers and the executor log through so every line of one
// invocation lines up under the same prefix.
func WithCascade(requestID, cascadeID, tier, functionID string) *log.Entry {
	return log.WithFields(log.Fields{
		"request_id":  requestID,
		"cascade_id":  cascadeID,
		"tier":        tier,
		"function_id": functionID,
	})
}

// SetupBaseLogger installs the Formatter and routes gin's writers through
// logrus so HTTP access lines share the same output and rotation. Safe to
// call multiple times; initialization happens once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetFormatter(&Formatter{})

		ginInfoWriter = log.StandardLogger().Writer()
		gin.DefaultWriter = ginInfoWriter
		ginErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultErrorWriter = ginErrorWriter
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			log.StandardLogger().Infof(strings.TrimRight(format, "\r\n"), values...)
		}

		log.RegisterExitHandler(closeLogOutputs)
	})
}

// ConfigureLogOutput switches the global log destination between a rotating
// file and stdout. When logsMaxTotalSizeMB > 0, a background cleaner removes
// the oldest files in the logs directory until the total size fits.
func ConfigureLogOutput(loggingToFile bool, logsMaxTotalSizeMB int) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()

	logDir := "logs"

	protectedPath := ""
	if loggingToFile {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("logging: failed to create log directory: %w", err)
		}
		if logWriter != nil {
			_ = logWriter.Close()
		}
		protectedPath = filepath.Join(logDir, "cascade-engine.log")
		logWriter = &lumberjack.Logger{
			Filename: protectedPath,
			MaxSize:  10,
		}
		log.SetOutput(logWriter)
	} else {
		if logWriter != nil {
			_ = logWriter.Close()
			logWriter = nil
		}
		log.SetOutput(os.Stdout)
	}

	configureLogDirCleanerLocked(logDir, logsMaxTotalSizeMB, protectedPath)
	return nil
}

func closeLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()

	stopLogDirCleanerLocked()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
	if ginInfoWriter != nil {
		_ = ginInfoWriter.Close()
		ginInfoWriter = nil
	}
	if ginErrorWriter != nil {
		_ = ginErrorWriter.Close()
		ginErrorWriter = nil
	}
}

// configureLogDirCleanerLocked installs or replaces the background log-directory
// size cap. Must be called with writerMu held. Passing maxTotalMB <= 0 disables it.
func configureLogDirCleanerLocked(logDir string, maxTotalMB int, protectedPath string) {
	cleanerMu.Lock()
	defer cleanerMu.Unlock()

	if cleanerCancel != nil {
		close(cleanerCancel)
		cleanerCancel = nil
	}
	if maxTotalMB <= 0 {
		return
	}

	stop := make(chan struct{})
	cleanerCancel = stop
	maxBytes := int64(maxTotalMB) * 1024 * 1024

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				pruneLogDir(logDir, maxBytes, protectedPath)
			}
		}
	}()
}

// stopLogDirCleanerLocked cancels the background cleaner, if any. Must be called
// with writerMu held.
func stopLogDirCleanerLocked() {
	cleanerMu.Lock()
	defer cleanerMu.Unlock()
	if cleanerCancel != nil {
		close(cleanerCancel)
		cleanerCancel = nil
	}
}

// pruneLogDir deletes the oldest files under logDir until the total size of its
// contents is within maxBytes. protectedPath, the file currently being written to,
// is never deleted.
func pruneLogDir(logDir string, maxBytes int64, protectedPath string) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return
	}

	type fileInfo struct {
		path    string
		size    int64
		modTime time.Time
	}
	var files []fileInfo
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(logDir, e.Name())
		total += info.Size()
		files = append(files, fileInfo{path: path, size: info.Size(), modTime: info.ModTime()})
	}
	if total <= maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for _, f := range files {
		if total <= maxBytes {
			return
		}
		if f.path == protectedPath {
			continue
		}
		if err := os.Remove(f.path); err == nil {
			total -= f.size
		}
	}
}
