package logging

import "go.uber.org/zap"

// NewLogger returns a zap logger. debug=true gives the development config
// (console, debug level); otherwise production (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewFileLogger is NewLogger writing to path instead of stderr.
func NewFileLogger(debug bool, path string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
