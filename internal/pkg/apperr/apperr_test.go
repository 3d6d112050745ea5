package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesKind(t *testing.T) {
	err := Conflict("slot_taken", "slot already locked")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))

	wrapped := fmt.Errorf("acquire: %w", err)
	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "slot_taken", CodeOf(wrapped))
}

func TestIsMatchesCodeWhenGiven(t *testing.T) {
	err := NotFound("lock_expired", "")
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound, Code: "lock_expired"}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound, Code: "booking_not_found"}))
}

func TestUpstreamUnwraps(t *testing.T) {
	cause := errors.New("card_declined")
	err := Upstream("provider_error", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "card_declined")
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}
