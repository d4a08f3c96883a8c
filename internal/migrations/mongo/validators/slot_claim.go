package validators

import "go.mongodb.org/mongo-driver/bson"

var SlotClaimValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "booking_id", "claimed_at"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
			"booking_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},
			"claimed_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
