package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEvent(t *testing.T) {
	valid := func() *Event {
		return &Event{
			Headline:   "Fed holds rates steady",
			Impact:     60,
			Confidence: 0.8,
			Origin:     OriginLive,
		}
	}

	t.Run("valid event", func(t *testing.T) {
		assert.NoError(t, ValidateEvent(valid()))
	})

	t.Run("nil event", func(t *testing.T) {
		err := ValidateEvent(nil)
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})

	t.Run("empty headline", func(t *testing.T) {
		event := valid()
		event.Headline = ""
		assert.ErrorIs(t, ValidateEvent(event), ErrEmptyHeadline)
	})

	t.Run("impact out of range", func(t *testing.T) {
		event := valid()
		event.Impact = 101
		assert.ErrorIs(t, ValidateEvent(event), ErrImpactOutOfRange)
	})

	t.Run("confidence out of range", func(t *testing.T) {
		event := valid()
		event.Confidence = 1.5
		assert.ErrorIs(t, ValidateEvent(event), ErrConfidenceOutOfRange)
	})

	t.Run("unknown origin", func(t *testing.T) {
		event := valid()
		event.Origin = Origin("synthetic")
		assert.ErrorIs(t, ValidateEvent(event), ErrInvalidOrigin)
	})
}
