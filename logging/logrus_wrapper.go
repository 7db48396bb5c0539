// Copyright (c) 2024 The drv Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging is the driver's thin wrapper around logrus: a package
// level singleton with Debug/Info/Warn/Error funcs that fall back to
// stdout before the singleton is initialized, so library code can log
// unconditionally without forcing every caller through an init dance.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

const (
	// LevelDebug etc name the accepted values of the config file's
	// log_level field.
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LevelMapperRev maps the config file's textual level to a logrus level;
// exported so config.validate can reject unknown levels before the
// driver starts.
var LevelMapperRev = map[string]logrus.Level{
	LevelDebug: logrus.DebugLevel,
	LevelInfo:  logrus.InfoLevel,
	LevelWarn:  logrus.WarnLevel,
	LevelError: logrus.ErrorLevel,
}

var logObj *logger

type logger struct {
	iWriter *logrus.Logger // info-and-below
	fWriter *logrus.Logger // warn-and-above
}

// fallback writes a bracketed, level-tagged line to stdout for calls
// made before Initialize. It exists so library code can log
// unconditionally without every caller checking readiness first.
func fallback(level string, v ...interface{}) {
	fmt.Println(append([]interface{}{"[" + level + "]"}, v...)...)
}

func fallbackf(level, format string, v ...interface{}) {
	fmt.Printf("["+level+"] "+format+"\n", v...)
}

func Debug(v ...interface{}) {
	if logObj == nil {
		fallback(LevelDebug, v...)
		return
	}
	if logObj.iWriter.IsLevelEnabled(logrus.DebugLevel) {
		logObj.iWriter.Debug(v...)
	}
}

func Debugf(format string, v ...interface{}) {
	if logObj == nil {
		fallbackf(LevelDebug, format, v...)
		return
	}
	if logObj.iWriter.IsLevelEnabled(logrus.DebugLevel) {
		logObj.iWriter.Debugf(format, v...)
	}
}

// Debugfunc delays string concatenation in f to avoid unnecessary
// allocation at higher log levels.
func Debugfunc(f func() string) {
	if logObj == nil {
		fallback(LevelDebug, f())
		return
	}
	if logObj.iWriter.IsLevelEnabled(logrus.DebugLevel) {
		logObj.iWriter.Debug(f())
	}
}

func Info(v ...interface{}) {
	if logObj == nil {
		fallback(LevelInfo, v...)
		return
	}
	if logObj.iWriter.IsLevelEnabled(logrus.InfoLevel) {
		logObj.iWriter.Info(v...)
	}
}

func Infof(format string, v ...interface{}) {
	if logObj == nil {
		fallbackf(LevelInfo, format, v...)
		return
	}
	if logObj.iWriter.IsLevelEnabled(logrus.InfoLevel) {
		logObj.iWriter.Infof(format, v...)
	}
}

func Warn(v ...interface{}) {
	if logObj == nil {
		fallback(LevelWarn, v...)
		return
	}
	if logObj.fWriter.IsLevelEnabled(logrus.WarnLevel) {
		logObj.fWriter.Warn(v...)
	}
}

func Warnf(format string, v ...interface{}) {
	if logObj == nil {
		fallbackf(LevelWarn, format, v...)
		return
	}
	if logObj.fWriter.IsLevelEnabled(logrus.WarnLevel) {
		logObj.fWriter.Warnf(format, v...)
	}
}

func Error(v ...interface{}) {
	if logObj == nil {
		fallback(LevelError, v...)
		return
	}
	if logObj.fWriter.IsLevelEnabled(logrus.ErrorLevel) {
		logObj.fWriter.Error(v...)
	}
}

func Errorf(format string, v ...interface{}) {
	if logObj == nil {
		fallbackf(LevelError, format, v...)
		return
	}
	if logObj.fWriter.IsLevelEnabled(logrus.ErrorLevel) {
		logObj.fWriter.Errorf(format, v...)
	}
}

type logOptions struct {
	path      string
	level     string
	expireDay int
}

var defaultLogOptions = logOptions{
	path:      "log",
	level:     LevelInfo,
	expireDay: 7,
}

type Option func(*logOptions)

func WithPath(v string) Option {
	return func(o *logOptions) { o.path = v }
}

func WithExpireDay(v int) Option {
	return func(o *logOptions) { o.expireDay = v }
}

func WithLogLevel(l string) Option {
	return func(o *logOptions) { o.level = l }
}

// Initialize sets up the package-level logger. Calling it more than once
// is a no-op: the first caller wins.
func Initialize(opt ...Option) error {
	if logObj != nil {
		fmt.Println("[logging] already initialized")
		return nil
	}
	opts := defaultLogOptions
	for _, o := range opt {
		o(&opts)
	}

	if err := os.MkdirAll(opts.path, 0o755); err != nil {
		return fmt.Errorf("logging: mkdir %s: %w", opts.path, err)
	}

	iWriter, err := newWriter(opts.path, "drv.log", opts.expireDay)
	if err != nil {
		return err
	}
	fWriter, err := newWriter(opts.path, "drv.log.wf", opts.expireDay)
	if err != nil {
		return err
	}

	logObj = &logger{iWriter: iWriter, fWriter: fWriter}
	if lvl, ok := LevelMapperRev[opts.level]; ok {
		logObj.iWriter.SetLevel(lvl)
		logObj.fWriter.SetLevel(lvl)
	}
	return nil
}

func newWriter(path, name string, expireDay int) (*logrus.Logger, error) {
	w, err := rotatelogs.New(
		filepath.Join(path, name+".%Y%m%d"),
		rotatelogs.WithLinkName(filepath.Join(path, name)),
		rotatelogs.WithMaxAge(time.Duration(expireDay)*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("logging: open rotated writer for %s: %w", name, err)
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l, nil
}
