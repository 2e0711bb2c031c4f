package output

import (
	"log/slog"
	"time"
)

// writeWithFallback retries write against cfg.Path with doubling backoff,
// then retargets a timestamp-suffixed sibling. Both output formats share
// this loop. The fallback either succeeds or propagates its I/O error
// unmodified; data is never dropped.
func writeWithFallback(cfg WriterConfig, log *slog.Logger, format string, write func(path string) error) (string, error) {
	backoff := cfg.Backoff
	var lastErr error
	for attempt := 0; attempt < cfg.Attempts; attempt++ {
		err := write(cfg.Path)
		if err == nil {
			return cfg.Path, nil
		}
		lastErr = err
		log.Warn("output.write_failed",
			"format", format,
			"path", cfg.Path,
			"attempt", attempt+1,
			"max_attempts", cfg.Attempts,
			"error", err,
		)
		// no point sleeping once the fallback is the next step
		if attempt == cfg.Attempts-1 {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	fallback := FallbackPath(cfg.Path, time.Now())
	log.Warn("output.fallback",
		"format", format,
		"path", cfg.Path,
		"fallback", fallback,
		"error", lastErr,
	)
	if err := write(fallback); err != nil {
		return "", err
	}
	return fallback, nil
}
