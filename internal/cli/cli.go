package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/wiregrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("wiregrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
wiregrid - compile connectivity wiring files into engine directives.

Usage:
  wiregrid [options] [WIRING_PATH...]

Arguments:
  WIRING_PATH
    Path to a single .hcl file or a directory containing .hcl files.
    Several paths are processed in the order given.

Options:
`)
		flagSet.PrintDefaults()
	}

	wiringFlag := flagSet.String("wiring", "", "Path to the wiring file or directory.")
	wFlag := flagSet.String("w", "", "Path to the wiring file or directory (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	defaultRuleFlag := flagSet.String("default-rule", "all_to_all", "Rule used when a connect step has no conn_spec.")
	defaultSynapseFlag := flagSet.String("default-synapse", "static_synapse", "Synapse model used when a disconnect step has no syn_spec.")
	engineURLFlag := flagSet.String("engine-url", "", "socket.io URL of a remote engine. Empty uses the in-memory engine.")
	engineNamespaceFlag := flagSet.String("engine-namespace", "/", "socket.io namespace of the remote engine.")
	engineTimeoutFlag := flagSet.Duration("engine-timeout", 10*time.Second, "Timeout for connecting to and each call on the remote engine.")
	threadsFlag := flagSet.Int("threads", 1, "Virtual threads of the in-memory engine.")
	seedFlag := flagSet.Uint64("seed", 1, "Random seed of the in-memory engine.")
	metricsPortFlag := flagSet.Int("metrics-port", 0, "Port for the /health and /metrics HTTP server. 0 is disabled.")
	tracingFlag := flagSet.Bool("tracing", false, "Write OpenTelemetry spans to the log output.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	var paths []string
	switch {
	case *wiringFlag != "":
		paths = append(paths, *wiringFlag)
	case *wFlag != "":
		paths = append(paths, *wFlag)
	}
	paths = append(paths, flagSet.Args()...)
	slog.Debug("Wiring paths determined.", "paths", paths)

	if len(paths) == 0 {
		slog.Debug("No wiring path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	config, err := app.NewConfig(app.Config{
		WiringPaths:         paths,
		LogFormat:           strings.ToLower(*logFormatFlag),
		LogLevel:            strings.ToLower(*logLevelFlag),
		DefaultRule:         *defaultRuleFlag,
		DefaultSynapseModel: *defaultSynapseFlag,
		EngineURL:           *engineURLFlag,
		EngineNamespace:     *engineNamespaceFlag,
		EngineTimeout:       *engineTimeoutFlag,
		Threads:             *threadsFlag,
		Seed:                *seedFlag,
		MetricsPort:         *metricsPortFlag,
		Tracing:             *tracingFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
