package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = []string{"int", "long"}

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"resource_id",
			"date",
			"time",
			"duration_minutes",
			"status",
			"is_class",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"date": bson.M{
				"bsonType": "string",
				"pattern":  `^\d{4}-\d{2}-\d{2}$`,
			},

			"time": bson.M{
				"bsonType": "string",
				"pattern":  `^([01]\d|2[0-3]):00$`,
			},

			"duration_minutes": bson.M{
				"bsonType": integer,
				"minimum":  1,
				"maximum":  480,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"conflict",
					"error",
					"cancelled",
				},
			},

			"is_class": bson.M{
				"bsonType": "bool",
			},

			"email": bson.M{
				"bsonType": "string",
				"pattern":  `^[^@\s]+@[^@\s]+$`,
			},

			"host_email": bson.M{
				"bsonType": "string",
				"pattern":  `^[^@\s]+@[^@\s]+$`,
			},

			"max_participants": bson.M{
				"bsonType": integer,
				"minimum":  1,
				"maximum":  200,
			},

			"participants": bson.M{
				"bsonType": "array",
				"maxItems": 200,
				"items": bson.M{
					"bsonType":  "string",
					"minLength": 1,
					"maxLength": 100,
				},
			},

			"participant_count": bson.M{
				"bsonType": integer,
				"minimum":  0,
			},

			"credential": bson.M{
				"bsonType": "object",
				"required": []string{"credential_id", "access_code"},
				"properties": bson.M{
					"credential_id": bson.M{"bsonType": "string", "minLength": 1},
					"access_code":   bson.M{"bsonType": "string", "minLength": 1},
					"issued_at":     bson.M{"bsonType": "date"},
				},
			},

			"error": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
