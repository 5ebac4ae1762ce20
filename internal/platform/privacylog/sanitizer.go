// Package privacylog wraps slog handlers so that session and record
// identifiers never reach log output in plain form and credentials are
// redacted.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

var (
	bootNonce = randomNonce()
	// Fingerprints are stable within one process run only.
	fingerprintKeys = map[string]struct{}{
		"session_id": {},
		"record_id":  {},
		"client_ip":  {},
	}
	sensitiveKeyParts = []string{"token", "secret", "password", "authorization", "idempotency"}
)

type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, rec.Message, rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		clean = append(clean, SanitizeAttr(attr))
	}
	return &SanitizingHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr redacts credential-like keys and replaces identifier keys with
// a "<key>_fp" fingerprint. Groups are sanitized recursively.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	lower := strings.ToLower(key)
	switch {
	case isSensitiveKey(lower):
		return slog.String(key, redactedValue)
	case isFingerprintKey(lower):
		return slog.String(key+"_fp", FingerprintID(attr.Value.Resolve().String()))
	case attr.Value.Kind() == slog.KindGroup:
		group := attr.Value.Group()
		clean := make([]any, 0, len(group))
		for _, member := range group {
			clean = append(clean, SanitizeAttr(member))
		}
		return slog.Group(key, clean...)
	default:
		return attr
	}
}

// FingerprintID maps an id to a short salted hash; empty input stays empty.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func isFingerprintKey(key string) bool {
	_, ok := fingerprintKeys[key]
	return ok
}

func isSensitiveKey(key string) bool {
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("fallback_%p", &buf)
	}
	return hex.EncodeToString(buf)
}
