// options.go: Engine options for Strata configuration instances
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package strata

import "time"

// Options configures a Config instance at construction time.
type Options struct {
	// Base is an optional nested tree loaded into the base layer through the
	// merger before New returns. Unknown leaves are dropped with a
	// diagnostic, exactly as with LoadBase.
	Base map[string]any

	// Diagnostics receives non-fatal warnings (unknown keys, listener
	// panics). If nil, diagnostics go to the standard logger.
	Diagnostics DiagnosticHandler

	// Journal configures the optional change journal.
	// Default: disabled.
	Journal JournalConfig
}

// WithDefaults applies sensible defaults to the options.
func (o *Options) WithDefaults() *Options {
	opts := *o

	if opts.Diagnostics == nil {
		opts.Diagnostics = defaultDiagnosticHandler
	}

	if opts.Journal.Enabled {
		if opts.Journal.BufferSize <= 0 {
			opts.Journal.BufferSize = 256
		}
		if opts.Journal.FlushInterval <= 0 {
			opts.Journal.FlushInterval = 1 * time.Second
		}
	}

	return &opts
}
