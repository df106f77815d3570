package main

import (
	"fmt"

	"github.com/crimson-sun/flowguard/internal/config"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
	"github.com/crimson-sun/flowguard/internal/output/async"
	"github.com/crimson-sun/flowguard/internal/output/file"
	"github.com/crimson-sun/flowguard/internal/output/multi"
	"github.com/crimson-sun/flowguard/internal/output/stdout"
	"github.com/crimson-sun/flowguard/internal/output/webhook"
)

// buildOutput creates the configured event sinks behind an async buffer.
// onDrop may be nil.
func buildOutput(cfg config.OutputConfig, onDrop func(model.Event)) (output.Output, error) {
	verbosity, err := output.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return nil, err
	}

	var sinks []multi.Sink
	asyncOpts := []async.Option{}
	for _, format := range cfg.Formats() {
		switch format {
		case "none":
		case "stdout":
			sinks = append(sinks, multi.Sink{Name: format, Output: stdout.New(verbosity, cfg.Pretty)})
		case "file":
			f, err := file.New(cfg.Path, verbosity, file.WithMaxSize(int64(cfg.MaxSizeMB)<<20))
			if err != nil {
				closeAll(sinks)
				return nil, err
			}
			sinks = append(sinks, multi.Sink{Name: format, Output: f})
		case "webhook":
			w := webhook.New(cfg.WebhookURL,
				webhook.WithVerbosity(verbosity),
				webhook.WithClasses(cfg.WebhookClasses...),
			)
			sinks = append(sinks, multi.Sink{Name: format, Output: w})
			// A slow receiver must not stall request handling.
			asyncOpts = append(asyncOpts, async.WithDropOnFull())
		default:
			closeAll(sinks)
			return nil, fmt.Errorf("unknown output format %q", format)
		}
	}

	if len(sinks) == 0 {
		return output.Discard, nil
	}
	inner := sinks[0].Output
	if len(sinks) > 1 {
		inner = multi.New(sinks...)
	}
	if onDrop != nil {
		asyncOpts = append(asyncOpts, async.WithOnDrop(onDrop))
	}
	return async.New(inner, asyncOpts...), nil
}

func closeAll(sinks []multi.Sink) {
	_ = multi.New(sinks...).Close()
}
