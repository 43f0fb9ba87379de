package ipv6ddns

import (
	"io"
	"log"
	"strings"
)

const redactedPlaceholder = "***REDACTED***"

// redactSecrets replaces every occurrence of any non-empty secret in line
// with a placeholder, so configuration values (api_token, zone_id) never
// reach log output verbatim (spec §4.3 "Secrets"). Ported from
// original_source/src/daemon.rs's redact_secrets.
func redactSecrets(line string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		line = strings.ReplaceAll(line, s, redactedPlaceholder)
	}
	return line
}

// redactingWriter wraps an io.Writer, scrubbing secrets out of every write.
type redactingWriter struct {
	w       io.Writer
	secrets []string
}

func (r *redactingWriter) Write(p []byte) (int, error) {
	scrubbed := redactSecrets(string(p), r.secrets...)
	if _, err := r.w.Write([]byte(scrubbed)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewRedactingLogger returns a *log.Logger that writes to w with any of the
// given secrets (e.g. an api_token, a zone_id) scrubbed from every line
// before it is written. Intended for the daemon's top-level logger, which
// may otherwise echo configuration values supplied by the operator.
func NewRedactingLogger(w io.Writer, flag int, secrets ...string) *log.Logger {
	return log.New(&redactingWriter{w: w, secrets: secrets}, "", flag)
}
