package clog

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// clogHandler 包装 slog.Handler，持有可动态调整的级别
type clogHandler struct {
	slog.Handler
	levelVar *slog.LevelVar
	out      io.Writer
}

// newHandler 构造顺序：writer -> (可选) 着色 -> json/text handler
func newHandler(config *Config, o *options) (*clogHandler, error) {
	out, err := resolveWriter(config, o)
	if err != nil {
		return nil, err
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.slogLevel())

	handlerOpts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: replaceAttr(config.SourceRoot),
	}

	var h slog.Handler
	if strings.EqualFold(config.Format, "json") {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		w := out
		if config.EnableColor {
			w = &colorWriter{w: out}
		}
		h = slog.NewTextHandler(w, handlerOpts)
	}

	return &clogHandler{Handler: h, levelVar: levelVar, out: out}, nil
}

func (h *clogHandler) flush() {
	if f, ok := h.out.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		_ = f.Sync()
	}
}

func resolveWriter(config *Config, o *options) (io.Writer, error) {
	if o.writer != nil {
		return o.writer, nil
	}
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", config.Output, err)
		}
		return f, nil
	}
}

// replaceAttr 统一 level/time/source 的输出形式
func replaceAttr(sourceRoot string) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok {
				a.Value = slog.StringValue(levelName(lvl))
			}
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(TimeFormat))
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok {
				return slog.String("caller", fmt.Sprintf("%s:%d", trimSourcePath(src.File, sourceRoot), src.Line))
			}
		}
		return a
	}
}

func trimSourcePath(file, root string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if idx := strings.Index(file, "routesync/"); idx != -1 {
		return file[idx:]
	}
	return filepath.Base(file)
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiPurple = "\033[35m"
	ansiBgRed  = "\033[41;37m"
)

var levelColors = map[string]string{
	"DEBUG": ansiPurple,
	"INFO":  ansiGreen,
	"WARN":  ansiYellow,
	"ERROR": ansiRed,
	"FATAL": ansiBgRed,
}

// colorWriter 为 text 输出中的 level=XXX 着色，TextHandler 每条记录只调用一次 Write
type colorWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *colorWriter) Write(p []byte) (int, error) {
	line := p
	for name, color := range levelColors {
		token := []byte("level=" + name)
		if idx := bytes.Index(p, token); idx >= 0 {
			var b bytes.Buffer
			b.Write(p[:idx+len("level=")])
			b.WriteString(color + name + ansiReset)
			b.Write(p[idx+len(token):])
			line = b.Bytes()
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}
