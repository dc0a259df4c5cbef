// SPDX-License-Identifier: MIT

package bridge

import (
	"fmt"
	"strings"

	"github.com/TLimoges33/Syn-OS-sub013/internal/config"
)

// SubjectMapper translates between internal event types and external wire
// subjects. It is pure over static configuration and safe for concurrent
// reads without locking.
type SubjectMapper struct {
	prefix     string
	toExternal map[string]string
	toInternal map[string]string
}

// NewSubjectMapper builds the bidirectional table. Construction fails fast if
// two event types map to the same external subject, which would make the
// inverse lookup ambiguous.
func NewSubjectMapper(prefix string, mappings map[string]string) (*SubjectMapper, error) {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return nil, &config.ConfigError{Field: "subject_prefix", Reason: "must not be empty"}
	}
	m := &SubjectMapper{
		prefix:     prefix,
		toExternal: make(map[string]string, len(mappings)),
		toInternal: make(map[string]string, len(mappings)),
	}
	for eventType, subject := range mappings {
		if prev, dup := m.toInternal[subject]; dup {
			return nil, &config.ConfigError{
				Field:  "mappings",
				Reason: fmt.Sprintf("subject %q mapped from both %q and %q", subject, prev, eventType),
			}
		}
		m.toExternal[eventType] = subject
		m.toInternal[subject] = eventType
	}
	return m, nil
}

// Prefix returns the namespace prefix used for fallback subjects.
func (m *SubjectMapper) Prefix() string { return m.prefix }

// ToExternal is total: unmapped event types get a deterministic derived
// subject under the namespace prefix, so no event is ever unroutable.
func (m *SubjectMapper) ToExternal(eventType string) string {
	if subject, ok := m.toExternal[eventType]; ok {
		return subject
	}
	return m.prefix + "." + sanitizeSubject(eventType)
}

// ToInternal is partial: subjects outside the configured table and the
// namespace prefix return ok=false, telling the consumer to skip the message.
func (m *SubjectMapper) ToInternal(subject string) (string, bool) {
	if eventType, ok := m.toInternal[subject]; ok {
		return eventType, true
	}
	if rest, ok := strings.CutPrefix(subject, m.prefix+"."); ok && rest != "" {
		return rest, true
	}
	return "", false
}

// sanitizeSubject makes an event type safe as a subject suffix: lower-case,
// dots kept as hierarchy, any other run of characters collapsed to one "_".
func sanitizeSubject(eventType string) string {
	var b strings.Builder
	b.Grow(len(eventType))
	lastUnderscore := false
	for _, r := range strings.ToLower(eventType) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
