package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the process-wide JSON logger and returns it. Key names
// follow the log collector's contract (timestamp, severity, message), and
// every line carries the service name plus the environment and target
// chain when known. The standard library logger is bridged into the same
// handler so dependency packages cannot emit unstructured lines.
func Setup(service, env string, chainID uint64) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: renameKeys})

	attrs := baseAttrs(service, env, chainID)
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	logger := slog.New(handler).With(args...)
	slog.SetDefault(logger)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}

func baseAttrs(service, env string, chainID uint64) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	if chainID != 0 {
		attrs = append(attrs, slog.Uint64("chain_id", chainID))
	}
	return attrs
}

func renameKeys(groups []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}
