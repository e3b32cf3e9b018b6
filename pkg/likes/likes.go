package likes

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Status struct {
	Liked bool `json:"liked"`
	Count int  `json:"count"`
}

func Contains(likes []string, userId string) bool {
	if userId == "" {
		return false
	}
	for _, id := range likes {
		if id == userId {
			return true
		}
	}
	return false
}

func StatusOf(likes []string, userId string) Status {
	return Status{Liked: Contains(likes, userId), Count: len(likes)}
}

// Toggle is an update pipeline that removes userId from the likes set when it
// is there and appends it otherwise. Running it as one update keeps concurrent
// toggles from different users from overwriting each other.
func Toggle(userId string) mongo.Pipeline {
	current := bson.D{{Key: "$ifNull", Value: bson.A{"$likes", bson.A{}}}}
	toggled := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$in", Value: bson.A{userId, "$$likes"}}},
		bson.D{{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$$likes"},
			{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$this", userId}}}},
		}}},
		bson.D{{Key: "$concatArrays", Value: bson.A{"$$likes", bson.A{userId}}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "likes", Value: bson.D{{Key: "$let", Value: bson.D{
				{Key: "vars", Value: bson.D{{Key: "likes", Value: current}}},
				{Key: "in", Value: toggled},
			}}}},
			{Key: "updatedAt", Value: "$$NOW"},
		}}},
	}
}
