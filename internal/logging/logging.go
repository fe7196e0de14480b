// Package logging builds the component loggers used across stockbook.
//
// Every component logs through a standard *log.Logger with a "[name] "
// prefix. Output goes to stderr, to a size-rotated file, or both.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output.
type Config struct {
	// File is the log file path; empty disables file logging.
	File string `mapstructure:"file" toml:"file"`

	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb" toml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups" toml:"max_backups"`

	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days" toml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `mapstructure:"compress" toml:"compress"`

	// Stderr also writes to stderr.
	Stderr bool `mapstructure:"stderr" toml:"stderr"`
}

// Output is an open log destination.
type Output struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open returns the destination described by cfg. With neither a file nor
// stderr configured, logs are discarded.
func Open(cfg Config) *Output {
	var writers []io.Writer
	out := &Output{}

	if cfg.File != "" {
		out.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, out.file)
	}
	if cfg.Stderr {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		out.w = io.Discard
	case 1:
		out.w = writers[0]
	default:
		out.w = io.MultiWriter(writers...)
	}
	return out
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Logger returns a logger for component, e.g. Logger("sync") prefixes
// lines with "[sync] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
