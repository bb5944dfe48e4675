/*
Package log provides structured logging for the swarm using zerolog.

Every process (launcher, orchestrator, blade) shares one global logger,
configured once via Init and specialized per-component or per-blade with
WithComponent/WithBlade/WithHost. Output is either newline-delimited JSON
(--jlog) or a human-readable console format; both carry a timestamp on
every event.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	orchLog := log.WithComponent("control")
	orchLog.Info().Int("intents", len(intents)).Msg("tick committed")

	bladeLog := log.WithBlade(self.Name)
	bladeLog.Error().Err(err).Msg("install failed")

# OVH log intake

When OVH_LOG_API_KEY is set, every event is stamped with the fields the
OVH structured-log intake expects (version, X-OVH-TOKEN, and the blade's
host:port from Config.Host) via an internal zerolog hook, so the logger
can point directly at OVH without a separate shipper process.

# Conventions

  - Use Info for tick/commit/install lifecycle events, Warn for swallowed
    per-intent or per-repository failures, Error only for conditions a
    human should look at.
  - Prefer typed fields (.Str, .Int, .Err) over string interpolation.
  - Never log intent parameters or scraped items verbatim; they may carry
    third-party data not meant for the log pipeline.
*/
package log
