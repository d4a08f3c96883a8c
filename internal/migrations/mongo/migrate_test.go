package mongo

import (
	"prayerroom/pkg/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections_EveryCollectionHasValidatorAndIndexes(t *testing.T) {
	names := map[string]bool{}
	for _, c := range Collections() {
		names[c.Name] = true
		assert.NotEmpty(t, c.Indexes, c.Name)
		require.Contains(t, c.Validator, "$jsonSchema", c.Name)
		for _, idx := range c.Indexes {
			require.NotNil(t, idx.Options, c.Name)
			assert.NotNil(t, idx.Options.Name, c.Name)
		}
	}
	assert.Equal(t, map[string]bool{"Bookings": true, "Slot_claims": true, "Mail": true}, names)
}

func TestBookingValidator_AllowsEveryStatus(t *testing.T) {
	var bookings Collection
	for _, c := range Collections() {
		if c.Name == "Bookings" {
			bookings = c
		}
	}
	schema := bookings.Validator["$jsonSchema"].(bson.M)
	status := schema["properties"].(bson.M)["status"].(bson.M)

	assert.ElementsMatch(t, []string{
		model.StatusPending,
		model.StatusConfirmed,
		model.StatusConflict,
		model.StatusError,
		model.StatusCancelled,
	}, status["enum"])
}
