package etag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromVersionRoundTrip(t *testing.T) {
	for _, version := range []int64{0, 1, 42, 1<<40 + 7} {
		tag := FromVersion(version)
		require.NotEmpty(t, tag)

		parsed, err := ParseVersion(tag)
		require.NoError(t, err)
		assert.Equal(t, version, parsed)
	}
}

func TestParseVersionRejectsGarbage(t *testing.T) {
	_, err := ParseVersion("not a token!!")
	assert.Error(t, err)

	_, err = ParseVersion("bm90LWEtbnVtYmVy") // valid base64, not a number
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	current := FromVersion(3)
	assert.True(t, Match("", current), "empty expectation is no precondition")
	assert.True(t, Match(current, current))
	assert.False(t, Match(FromVersion(2), current))
}

func TestCollection(t *testing.T) {
	base := []Item{{DomainID: "a", Version: 1}, {DomainID: "b", Version: 1}}

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, Collection(base), Collection(base))
	})

	t.Run("version bump changes token", func(t *testing.T) {
		bumped := []Item{{DomainID: "a", Version: 2}, {DomainID: "b", Version: 1}}
		assert.NotEqual(t, Collection(base), Collection(bumped))
	})

	t.Run("membership change changes token", func(t *testing.T) {
		grown := append([]Item{}, base...)
		grown = append(grown, Item{DomainID: "c", Version: 1})
		assert.NotEqual(t, Collection(base), Collection(grown))
	})

	t.Run("order matters", func(t *testing.T) {
		swapped := []Item{{DomainID: "b", Version: 1}, {DomainID: "a", Version: 1}}
		assert.NotEqual(t, Collection(base), Collection(swapped))
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc", Normalize(`"abc"`))
	assert.Equal(t, "abc", Normalize(`W/"abc"`))
	assert.Equal(t, "abc", Normalize(" abc "))
}
