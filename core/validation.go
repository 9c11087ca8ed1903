// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"
	"time"
)

// ValidateRecord validates a Record before it is persisted.
//
// Validation rules:
//   - Text must not be empty or whitespace only
//   - Vector must contain at least one element
//   - CreatedAt must be set and not in the future
//
// NOT validated:
//   - ID (assigned by the store on insert)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if strings.TrimSpace(record.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyText)
	}

	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyVector)
	}

	if !IsValidTimestamp(record.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrInvalidTimestamp)
	}

	return nil
}

// IsValidTimestamp checks if a timestamp is set and not in the future.
func IsValidTimestamp(ts time.Time) bool {
	return !ts.IsZero() && !ts.After(time.Now())
}

// Truncate shortens text to at most n runes, appending "..." when cut.
// Used to keep log lines readable when they carry the offending text.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
