// Package swarmerr names the error taxonomy of §7: the kinds of failure the
// core distinguishes so callers can react (retry next tick, skip this
// blade, respond 400) without parsing message strings.
package swarmerr

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err...) at the point of
// failure and unwrap with errors.Is at the point of decision.
var (
	// ErrUpstreamUnavailable: tag service or commit endpoint unreachable.
	// Retry next tick.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistence: version store query failed. Log, preserve prior state.
	ErrPersistence = errors.New("persistence error")

	// ErrNoCandidate: the weighted chooser found zero total weight.
	ErrNoCandidate = errors.New("no candidate")

	// ErrUnknownModuleVersion: capability map lacks the selected module.
	ErrUnknownModuleVersion = errors.New("unknown module version")

	// ErrUnreachableBlade: intent commit failed.
	ErrUnreachableBlade = errors.New("unreachable blade")

	// ErrModuleInstallFailed: blade-side install failure.
	ErrModuleInstallFailed = errors.New("module install failed")

	// ErrMalformedIntent: blade received an intent missing required fields.
	ErrMalformedIntent = errors.New("malformed intent")

	// ErrScrapingModule: exception raised inside the scraping generator.
	ErrScrapingModule = errors.New("scraping module error")
)
