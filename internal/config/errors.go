// SPDX-License-Identifier: MIT

package config

import "fmt"

// ConfigError reports an invalid or ambiguous configuration. It is fatal at
// construction time and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}
