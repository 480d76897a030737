package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type LoggerConfig struct {
	Level          string      `env:"LEVEL"          envDefault:"info"`   // trace|debug|info|warn|error
	Format         string      `env:"FORMAT"         envDefault:"json"`   // json|text
	Output         string      `env:"OUTPUT"         envDefault:"stdout"` // stdout|stderr|file|multi
	FilePath       string      `env:"FILE_PATH"`                          // required if Output=file or includes file
	FileMode       os.FileMode `env:"FILE_MODE"`                          // decimal permission bits; 0 means 0644
	ExtraFieldsRaw string      `env:"FIELDS"`                             // key1=val1,key2=val2
	OTELExporter   string      `env:"OTEL_EXPORTER"  envDefault:"none"`   // none|otlp-http|otlp-grpc
	OTELEndpoint   string      `env:"OTEL_ENDPOINT"`

	file    io.Writer
	fileMut sync.Mutex
}

func (lc *LoggerConfig) validate() []error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", lc.Level))
	}
	switch lc.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", lc.Format))
	}
	switch lc.OTELExporter {
	case "", "none", "otlp-http", "otlp-grpc":
	default:
		errs = append(errs, fmt.Errorf("invalid log exporter %q", lc.OTELExporter))
	}
	return errs
}

// Writer returns the primary writer (first configured) to satisfy existing interface usage.
func (c *Config) Writer() io.Writer {
	writers := c.Writers()
	if len(writers) == 0 {
		return os.Stdout
	}
	return writers[0]
}

// Writers returns a slice of io.Writer for multi-output support.
// LOG_OUTPUT examples:
//
//	stdout
//	stderr
//	file (uses LOG_FILE_PATH)
//	file:/var/log/app.log
//	stdout,file             (comma-separated)
//
// Unknown tokens are ignored with a warning.
func (c *Config) Writers() []io.Writer {
	outputs := strings.TrimSpace(c.Logger.Output)
	if outputs == "" {
		return []io.Writer{os.Stdout}
	}
	parts := strings.Split(outputs, ",")
	writers := make([]io.Writer, 0, len(parts))
	seen := make(map[string]struct{})

	addWriter := func(key string, w io.Writer) {
		if w == nil {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		writers = append(writers, w)
	}

	for _, raw := range parts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lower := strings.ToLower(raw)
		if strings.HasPrefix(lower, "file:") {
			path := raw[len("file:"):]
			addWriter("file:"+path, c.openFile(path))
			continue
		}
		switch lower {
		case "stdout":
			addWriter("stdout", os.Stdout)
		case "stderr":
			addWriter("stderr", os.Stderr)
		case "file":
			if c.Logger.FilePath == "" {
				slog.Warn("LOG_OUTPUT includes 'file' but LOG_FILE_PATH not set; skipping")
				continue
			}
			addWriter("file:"+c.Logger.FilePath, c.openFile(c.Logger.FilePath))
		default:
			slog.Warn("unknown log output entry", "entry", raw)
		}
	}

	if len(writers) == 0 { // fallback
		return []io.Writer{os.Stdout}
	}
	return writers
}

// openFile opens or reuses a file writer.
func (c *Config) openFile(path string) io.Writer {
	if path == "" {
		return nil
	}
	c.Logger.fileMut.Lock()
	defer c.Logger.fileMut.Unlock()
	if c.Logger.file != nil && c.Logger.FilePath == path {
		return c.Logger.file
	}
	mode := c.Logger.FileMode
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		slog.Warn("cannot open file for log output", "path", path, "error", err)
		return nil
	}
	c.Logger.FilePath = path
	c.Logger.file = f
	return f
}

// ParseExtraFields parses ExtraFieldsRaw into a map.
func (lc *LoggerConfig) ParseExtraFields() map[string]string {
	res := make(map[string]string)
	if lc == nil || lc.ExtraFieldsRaw == "" {
		return res
	}
	for _, p := range strings.Split(lc.ExtraFieldsRaw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			res[k] = strings.TrimSpace(v)
		}
	}
	return res
}

func (lc *LoggerConfig) ParseLevel() string {
	if lc == nil {
		return "info"
	}
	lvl := strings.ToLower(strings.TrimSpace(lc.Level))
	switch lvl {
	case "trace", "debug", "info", "warn", "error":
		return lvl
	default:
		return "info"
	}
}

// Interface compliance helpers for logger.Options
func (c *Config) LogLevel() slog.Level {
	switch c.Logger.ParseLevel() {
	case "trace":
		return slog.Level(-8)
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) LogFormat() string              { return c.Logger.Format }
func (c *Config) OTELExporter() string           { return c.Logger.OTELExporter }
func (c *Config) OTELEndpoint() string           { return c.Logger.OTELEndpoint }
func (c *Config) ExtraFields() map[string]string { return c.Logger.ParseExtraFields() }
