package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/nycdangermap/incident-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// CommentStore persists comments and keeps the owning post's comment ref
// array in step.
type CommentStore struct {
	coll  *mongo.Collection
	posts *mongo.Collection
}

// Insert stores the comment and appends its ID to the post's comment refs.
func (s *CommentStore) Insert(ctx context.Context, comment domain.Comment) (domain.Comment, error) {
	if comment.ID.IsZero() {
		comment.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, comment); err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	_, err := s.posts.UpdateOne(ctx,
		bson.M{"_id": comment.PostID},
		bson.M{"$push": bson.M{"comments": comment.ID}},
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("link comment %s to post %s: %w",
			comment.ID.Hex(), comment.PostID.Hex(), err)
	}
	return comment, nil
}

// FindByID fetches one comment.
func (s *CommentStore) FindByID(ctx context.Context, id primitive.ObjectID) (domain.Comment, error) {
	var comment domain.Comment
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&comment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Comment{}, domain.NewNotFoundError("comment", id.Hex())
	}
	if err != nil {
		return domain.Comment{}, fmt.Errorf("find comment %s: %w", id.Hex(), err)
	}
	return comment, nil
}

// ByPost returns a post's comments in insertion order.
func (s *CommentStore) ByPost(ctx context.Context, postID primitive.ObjectID) ([]domain.Comment, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"post": postID})
	if err != nil {
		return nil, fmt.Errorf("find comments for post %s: %w", postID.Hex(), err)
	}
	defer cursor.Close(ctx)

	var comments []domain.Comment
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}

// Delete removes the comment and pulls its ref from the owning post.
func (s *CommentStore) Delete(ctx context.Context, id primitive.ObjectID) (domain.Comment, error) {
	comment, err := s.FindByID(ctx, id)
	if err != nil {
		return domain.Comment{}, err
	}

	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return domain.Comment{}, fmt.Errorf("delete comment %s: %w", id.Hex(), err)
	}
	_, err = s.posts.UpdateOne(ctx,
		bson.M{"_id": comment.PostID},
		bson.M{"$pull": bson.M{"comments": id}},
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("unlink comment %s from post %s: %w",
			id.Hex(), comment.PostID.Hex(), err)
	}
	return comment, nil
}

// DeleteAllForPost drops every comment of a post, for post-delete cascade.
func (s *CommentStore) DeleteAllForPost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"post": postID})
	if err != nil {
		return 0, fmt.Errorf("delete comments for post %s: %w", postID.Hex(), err)
	}
	return res.DeletedCount, nil
}

// CommentScores lists the score values of a post's comments, for aggregation.
func (s *CommentStore) CommentScores(ctx context.Context, postID primitive.ObjectID) ([]float64, error) {
	comments, err := s.ByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, 0, len(comments))
	for _, c := range comments {
		scores = append(scores, c.Score)
	}
	return scores, nil
}
