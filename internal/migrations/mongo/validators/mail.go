package validators

import "go.mongodb.org/mongo-driver/bson"

var MailValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"to", "template", "created_at"},
		"properties": bson.M{
			"to": bson.M{
				"bsonType":  "string",
				"minLength": 3,
			},
			"template": bson.M{
				"bsonType": "object",
				"required": []string{"name", "data"},
				"properties": bson.M{
					"name": bson.M{
						"bsonType": "string",
						"enum": []string{
							"booking-confirmation",
							"booking-cancellation",
							"booking-update",
						},
					},
					"data": bson.M{
						"bsonType": "object",
					},
				},
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
