package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/models"
	appErrors "github.com/noticeboardhq/noticeboard/pkg/errors"
	"github.com/noticeboardhq/noticeboard/pkg/validator"
)

const recentPostLimit = 20

// PostService owns the community board: posts, comments and their cached
// read paths. Reads for hot keys go through cache.Remember; every mutation
// runs against the database first and invalidates afterwards.
type PostService struct {
	db    *database.Facade
	store cache.Store
	inv   *cache.Invalidator
	ttl   time.Duration
}

// NewPostService wires the board service.
func NewPostService(db *database.Facade, store cache.Store, inv *cache.Invalidator, ttl time.Duration) (*PostService, error) {
	if db == nil {
		return nil, errors.New("posts: database facade is required")
	}
	if store == nil {
		return nil, errors.New("posts: cache store is required")
	}
	return &PostService{db: db, store: store, inv: inv, ttl: ttl}, nil
}

// PostInput is the payload for creating or updating a post.
type PostInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Body     string `json:"body" validate:"required"`
	Category string `json:"category" validate:"max=64"`
}

// Recent returns the newest posts. This is the board's hottest read, cached
// under a fixed key.
func (s *PostService) Recent(ctx context.Context) ([]models.Post, error) {
	return cache.Remember(ctx, s.store, KeyRecentPosts, s.ttl, func(ctx context.Context) ([]models.Post, error) {
		posts := []models.Post{}
		err := s.db.DB().WithContext(ctx).
			Order("created_at DESC").
			Limit(recentPostLimit).
			Find(&posts).Error
		if err != nil {
			return nil, appErrors.ErrQuery.WithInternal(err)
		}
		return posts, nil
	})
}

// Search filters posts by category and a title/body term with manual
// pagination. Always parameterized; results are not cached.
func (s *PostService) Search(ctx context.Context, term, category string, page, perPage int) ([]models.Post, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	where := "1=1"
	args := []any{}
	if term = strings.TrimSpace(term); term != "" {
		where += " AND (title LIKE ? OR body LIKE ?)"
		pattern := "%" + term + "%"
		args = append(args, pattern, pattern)
	}
	if category = strings.TrimSpace(category); category != "" {
		where += " AND category = ?"
		args = append(args, category)
	}

	var total int64
	found, err := s.db.SelectOne(ctx, &total, "SELECT COUNT(*) FROM posts WHERE "+where, args...)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		total = 0
	}

	posts := []models.Post{}
	query := "SELECT * FROM posts WHERE " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, perPage, (page-1)*perPage)
	if err := s.db.Select(ctx, &posts, query, args...); err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// Get returns one post with its comments, cached per id.
func (s *PostService) Get(ctx context.Context, id uint) (models.Post, error) {
	return cache.Remember(ctx, s.store, PostKey(id), s.ttl, func(ctx context.Context) (models.Post, error) {
		var post models.Post
		err := s.db.DB().WithContext(ctx).Preload("Comments").Take(&post, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Post{}, appErrors.ErrNotFound
		}
		if err != nil {
			return models.Post{}, appErrors.ErrQuery.WithInternal(err)
		}
		return post, nil
	})
}

// CategoryCounts aggregates posts per category, cached under a fixed key.
func (s *PostService) CategoryCounts(ctx context.Context) ([]models.CategoryCount, error) {
	return cache.Remember(ctx, s.store, KeyCategoryCounts, s.ttl, func(ctx context.Context) ([]models.CategoryCount, error) {
		counts := []models.CategoryCount{}
		err := s.db.Select(ctx, &counts,
			"SELECT category, COUNT(*) AS count FROM posts GROUP BY category ORDER BY count DESC")
		return counts, err
	})
}

// Create stores a new post for the caller and invalidates affected keys.
func (s *PostService) Create(ctx context.Context, identity auth.Identity, input PostInput) (models.Post, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Post{}, appErrors.NewValidation(err.Error())
	}

	post := models.Post{
		Title:    input.Title,
		Body:     input.Body,
		Category: input.Category,
		AuthorID: identity.UserID,
	}
	if err := s.db.DB().WithContext(ctx).Create(&post).Error; err != nil {
		return models.Post{}, appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "post", post.ID)
	return post, nil
}

// Update rewrites a post. Only the author or an admin may update; the denial
// is identical whether the post exists or not.
func (s *PostService) Update(ctx context.Context, identity auth.Identity, id uint, input PostInput) (models.Post, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Post{}, appErrors.NewValidation(err.Error())
	}

	post, err := s.authorizePost(ctx, identity, id)
	if err != nil {
		return models.Post{}, err
	}

	res, err := s.db.Execute(ctx,
		"UPDATE posts SET title = ?, body = ?, category = ?, updated_at = ? WHERE id = ?",
		input.Title, input.Body, input.Category, time.Now(), id)
	if err != nil {
		return models.Post{}, err
	}
	if res.RowsAffected == 0 {
		return models.Post{}, appErrors.ErrNotFound
	}

	s.inv.Invalidate(ctx, "post", id)

	post.Title = input.Title
	post.Body = input.Body
	post.Category = input.Category
	return post, nil
}

// Delete removes a post and its comments.
func (s *PostService) Delete(ctx context.Context, identity auth.Identity, id uint) error {
	if _, err := s.authorizePost(ctx, identity, id); err != nil {
		return err
	}

	if err := s.db.DB().WithContext(ctx).Select("Comments").Delete(&models.Post{ID: id}).Error; err != nil {
		return appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "post", id)
	return nil
}

// CommentInput is the payload for commenting on a post.
type CommentInput struct {
	Body string `json:"body" validate:"required"`
}

// AddComment appends a comment to a post and drops the post's cached thread.
func (s *PostService) AddComment(ctx context.Context, identity auth.Identity, postID uint, input CommentInput) (models.Comment, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return models.Comment{}, appErrors.NewValidation(err.Error())
	}

	var exists int64
	if err := s.db.DB().WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&exists).Error; err != nil {
		return models.Comment{}, appErrors.ErrQuery.WithInternal(err)
	}
	if exists == 0 {
		return models.Comment{}, appErrors.ErrNotFound
	}

	comment := models.Comment{
		PostID:   postID,
		AuthorID: identity.UserID,
		Body:     input.Body,
	}
	if err := s.db.DB().WithContext(ctx).Create(&comment).Error; err != nil {
		return models.Comment{}, appErrors.ErrQuery.WithInternal(err)
	}

	s.inv.Invalidate(ctx, "comment", postID)
	return comment, nil
}

// authorizePost loads a post and checks the caller may mutate it. A failed
// ownership check returns the same generic denial as a missing post so the
// response does not reveal whether the id exists.
func (s *PostService) authorizePost(ctx context.Context, identity auth.Identity, id uint) (models.Post, error) {
	var post models.Post
	err := s.db.DB().WithContext(ctx).Take(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if identity.IsAdmin() {
			return models.Post{}, appErrors.ErrNotFound
		}
		return models.Post{}, appErrors.ErrAccessDenied
	}
	if err != nil {
		return models.Post{}, appErrors.ErrQuery.WithInternal(err)
	}

	if !identity.IsAdmin() && post.AuthorID != identity.UserID {
		return models.Post{}, appErrors.ErrAccessDenied
	}
	return post, nil
}
