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

import "errors"

// Domain validation errors
var (
	// ErrInvalidEvent indicates an Event failed validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrEmptyHeadline indicates the Headline field is empty.
	ErrEmptyHeadline = errors.New("headline cannot be empty")

	// ErrImpactOutOfRange indicates Impact is outside [0, 100].
	ErrImpactOutOfRange = errors.New("impact must be between 0 and 100")

	// ErrConfidenceOutOfRange indicates Confidence is outside [0, 1].
	ErrConfidenceOutOfRange = errors.New("confidence must be between 0 and 1")

	// ErrInvalidOrigin indicates an unknown Origin value.
	ErrInvalidOrigin = errors.New("invalid origin")
)
