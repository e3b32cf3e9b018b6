package feed

import "go.mongodb.org/mongo-driver/bson"

type Sort string

const (
	Newest        Sort = "newest"
	Oldest        Sort = "oldest"
	MostLiked     Sort = "most_liked"
	MostCommented Sort = "most_commented"
)

// Derived fields added by the pipeline before sorting.
const (
	likesCountField    = "likesCount"
	commentsCountField = "commentsCount"
)

// ParseSort never fails: unknown or empty keywords mean Newest.
func ParseSort(raw string) Sort {
	switch s := Sort(raw); s {
	case Oldest, MostLiked, MostCommented:
		return s
	default:
		return Newest
	}
}

// Keys is the full ordering. Every order ends on _id so pages stay stable
// when the leading keys tie.
func (s Sort) Keys() bson.D {
	switch s {
	case Oldest:
		return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	case MostLiked:
		return bson.D{{Key: likesCountField, Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	case MostCommented:
		return bson.D{{Key: commentsCountField, Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
	}
}

func (s Sort) Stage() bson.D {
	return bson.D{{Key: "$sort", Value: s.Keys()}}
}

// derivedFields computes the counts once per query so sorting and the view
// agree on them.
func derivedFields() bson.D {
	size := func(field string) bson.D {
		return bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{field, bson.A{}}}}}}
	}
	return bson.D{{Key: "$addFields", Value: bson.D{
		{Key: likesCountField, Value: size("$likes")},
		{Key: commentsCountField, Value: size("$comments")},
	}}}
}
