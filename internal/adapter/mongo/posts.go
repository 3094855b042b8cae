package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"github.com/nycdangermap/incident-engine/internal/proximity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostStore persists posts with their embedded ratings and comment refs.
type PostStore struct {
	coll *mongo.Collection
}

// Insert stores a new post and returns it with its generated ID.
func (s *PostStore) Insert(ctx context.Context, post domain.Post) (domain.Post, error) {
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	if post.Ratings == nil {
		post.Ratings = []domain.Rating{}
	}
	if post.Comments == nil {
		post.Comments = []primitive.ObjectID{}
	}
	if _, err := s.coll.InsertOne(ctx, post); err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return post, nil
}

// FindByID fetches one post regardless of visibility.
func (s *PostStore) FindByID(ctx context.Context, id primitive.ObjectID) (domain.Post, error) {
	var post domain.Post
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Post{}, domain.NewNotFoundError("post", id.Hex())
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("find post %s: %w", id.Hex(), err)
	}
	return post, nil
}

// FindInBox returns visible posts whose coordinates fall inside box,
// newest first. This is the prefilter behind every proximity query.
func (s *PostStore) FindInBox(ctx context.Context, box proximity.Box) ([]domain.Post, error) {
	filter := bson.M{
		"isHidden":           bson.M{"$ne": true},
		"location.latitude":  bson.M{"$gte": box.MinLat, "$lte": box.MaxLat},
		"location.longitude": bson.M{"$gte": box.MinLon, "$lte": box.MaxLon},
	}
	return s.findPosts(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

// FindVisible returns all non-hidden posts, newest first.
func (s *PostStore) FindVisible(ctx context.Context) ([]domain.Post, error) {
	filter := bson.M{"isHidden": bson.M{"$ne": true}}
	return s.findPosts(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

// FindByAuthor returns one author's posts including hidden ones, newest first.
func (s *PostStore) FindByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]domain.Post, error) {
	return s.findPosts(ctx, bson.M{"user": authorID}, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

// FindPopular returns the top visible posts by aggregated score.
func (s *PostStore) FindPopular(ctx context.Context, limit int64) ([]domain.Post, error) {
	filter := bson.M{"isHidden": bson.M{"$ne": true}}
	opts := options.Find().
		SetSort(bson.D{{Key: "post_score", Value: -1}, {Key: "date", Value: -1}}).
		SetLimit(limit)
	return s.findPosts(ctx, filter, opts)
}

func (s *PostStore) findPosts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Post, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []domain.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}

// Update applies a partial edit to the client-mutable fields.
func (s *PostStore) Update(ctx context.Context, id primitive.ObjectID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update post %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("post", id.Hex())
	}
	return nil
}

// SetHidden flips the moderation visibility flag.
func (s *PostStore) SetHidden(ctx context.Context, id primitive.ObjectID, hidden bool) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"isHidden": hidden}})
	if err != nil {
		return fmt.Errorf("set hidden on post %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("post", id.Hex())
	}
	return nil
}

// Delete removes the post document. Comment cleanup is the caller's job.
func (s *PostStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return domain.NewNotFoundError("post", id.Hex())
	}
	return nil
}

// UpsertRating replaces the user's existing rating in place, or pushes a new
// one when the user has not rated this post before.
func (s *PostStore) UpsertRating(ctx context.Context, postID primitive.ObjectID, rating domain.Rating) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": postID, "ratings.user": rating.UserID},
		bson.M{"$set": bson.M{"ratings.$.rating": rating.Value}},
	)
	if err != nil {
		return fmt.Errorf("update rating on post %s: %w", postID.Hex(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	res, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$push": bson.M{"ratings": rating}},
	)
	if err != nil {
		return fmt.Errorf("push rating on post %s: %w", postID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("post", postID.Hex())
	}
	return nil
}

// SetScore writes the derived aggregate score.
func (s *PostStore) SetScore(ctx context.Context, postID primitive.ObjectID, score float64) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$set": bson.M{"post_score": score}})
	if err != nil {
		return fmt.Errorf("set score on post %s: %w", postID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("post", postID.Hex())
	}
	return nil
}

// RatingScores lists the rating values on one post, for aggregation.
func (s *PostStore) RatingScores(ctx context.Context, postID primitive.ObjectID) ([]float64, error) {
	post, err := s.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, 0, len(post.Ratings))
	for _, r := range post.Ratings {
		scores = append(scores, r.Value)
	}
	return scores, nil
}

// PushCommentRef appends a comment ID to the post's comment ref array.
func (s *PostStore) PushCommentRef(ctx context.Context, postID, commentID primitive.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$push": bson.M{"comments": commentID}})
	if err != nil {
		return fmt.Errorf("push comment ref on post %s: %w", postID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("post", postID.Hex())
	}
	return nil
}

// PullCommentRef removes a comment ID from the post's comment ref array.
func (s *PostStore) PullCommentRef(ctx context.Context, postID, commentID primitive.ObjectID) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$pull": bson.M{"comments": commentID}})
	if err != nil {
		return fmt.Errorf("pull comment ref on post %s: %w", postID.Hex(), err)
	}
	return nil
}
