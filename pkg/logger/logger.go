/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger provides JSON structured logging using zerolog.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config controls log level and destination.
type Config struct {
	Level      string `json:"level"`
	Debug      bool   `json:"debug"`
	Output     string `json:"output"`
	TimeFormat string `json:"time_format"`
}

// DefaultConfig reads the logging configuration from the environment.
func DefaultConfig() *Config {
	return &Config{
		Level:      getEnvOrDefault("LOG_LEVEL", "info"),
		Debug:      getEnvBoolOrDefault("DEBUG", false),
		Output:     getEnvOrDefault("LOG_OUTPUT", "stdout"),
		TimeFormat: getEnvOrDefault("LOG_TIME_FORMAT", ""),
	}
}

// New creates a Logger from config. If config is nil the default
// environment-driven configuration is used.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer = os.Stdout
	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &loggerImpl{logger: zlog}, nil
}

// NewWithWriter creates a Logger that writes to w at the given level. Used
// by tests that assert on emitted records.
func NewWithWriter(w io.Writer, level zerolog.Level) Logger {
	zlog := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &loggerImpl{logger: zlog}
}

type loggerImpl struct {
	logger zerolog.Logger
}

func (l *loggerImpl) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *loggerImpl) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *loggerImpl) Info() *zerolog.Event  { return l.logger.Info() }
func (l *loggerImpl) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *loggerImpl) Error() *zerolog.Event { return l.logger.Error() }
func (l *loggerImpl) Fatal() *zerolog.Event { return l.logger.Fatal() }
func (l *loggerImpl) Panic() *zerolog.Event { return l.logger.Panic() }
func (l *loggerImpl) With() zerolog.Context { return l.logger.With() }

func (l *loggerImpl) WithComponent(component string) zerolog.Logger {
	return l.logger.With().Str("component", component).Logger()
}

func (l *loggerImpl) WithFields(fields map[string]interface{}) zerolog.Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}

	return ctx.Logger()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch value {
	case "true", "1", "yes", "on", "TRUE", "True":
		return true
	}

	return false
}
