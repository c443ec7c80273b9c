package main

import (
	"fmt"
	"io"

	"aqua-monitor/internal/sink"
	"aqua-monitor/internal/telemetry"
)

// newStateWriter picks the snapshot writer for a headless format and, when
// outputPath is set, also records every snapshot to a JSONL file. The
// returned cleanup closes any files opened.
func newStateWriter(format string, targets []telemetry.SpeciesTarget, out io.Writer, outputPath string) (sink.StateWriter, func(), error) {
	cleanup := func() {}

	var base sink.StateWriter
	switch format {
	case "json":
		base = sink.NewJSONWriter(out)
	case "text":
		base = sink.NewColorWriter(out, targets)
	default:
		return nil, nil, fmt.Errorf("unknown output format %q", format)
	}
	if outputPath == "" {
		return base, cleanup, nil
	}

	fw, err := sink.NewFileWriter(outputPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup = func() { fw.Close() }
	return sink.NewMultiWriter(base, fw), cleanup, nil
}
