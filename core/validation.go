// Copyright 2025 Marketlens Contributors
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

import "fmt"

// ValidateEvent validates an Event according to domain rules.
//
// Validation rules:
//   - Headline must not be empty
//   - Impact must be within [0, 100]
//   - Confidence must be within [0, 1]
//   - Origin must be live or seed
//
// NOT validated (owned by the producing source):
//   - Evidence (a live event may carry none)
//   - EventID (sources may derive it after construction)
func ValidateEvent(event *Event) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}

	if event.Headline == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrEmptyHeadline)
	}

	if event.Impact < 0 || event.Impact > 100 {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrImpactOutOfRange)
	}

	if event.Confidence < 0 || event.Confidence > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrConfidenceOutOfRange)
	}

	if event.Origin != OriginLive && event.Origin != OriginSeed {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrInvalidOrigin)
	}

	return nil
}
