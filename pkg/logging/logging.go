// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides printf-style logging for user-facing command
// output. Levels are colorized only when stderr is a terminal.
package logging

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&levelPrefixFormatter{
		colorize: isatty.IsTerminal(os.Stderr.Fd()),
	})
}

// SetDebug enables debug-level output, both here and on the standard logrus
// logger that backend packages log to directly.
func SetDebug(enabled bool) {
	level := logrus.InfoLevel
	if enabled {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logrus.SetLevel(level)
}

// levelPrefixFormatter renders "LEVEL: message" lines rather than the default
// logrus key=value format, since this output is read by humans at a terminal.
type levelPrefixFormatter struct {
	colorize bool
}

func (f *levelPrefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	prefix := ""
	switch entry.Level {
	case logrus.DebugLevel:
		prefix = f.paint(color.FgCyan, "DEBUG")
	case logrus.WarnLevel:
		prefix = f.paint(color.FgYellow, "WARNING")
	case logrus.ErrorLevel, logrus.FatalLevel:
		prefix = f.paint(color.FgRed, "ERROR")
	}
	if prefix == "" {
		return []byte(entry.Message + "\n"), nil
	}
	return []byte(fmt.Sprintf("%s: %s\n", prefix, entry.Message)), nil
}

func (f *levelPrefixFormatter) paint(attr color.Attribute, s string) string {
	if !f.colorize {
		return s
	}
	return color.New(attr).Sprint(s)
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// Info logs a formatted message at info level.
func Info(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// Warn logs a formatted message at warning level.
func Warn(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// Error logs a formatted message at error level.
func Error(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// Fatal logs a formatted message at error level and exits non-zero.
func Fatal(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
