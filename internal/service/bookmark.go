package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marker-labs/marker-back/internal/db"
	"github.com/marker-labs/marker-back/internal/policy"
)

type Bookmark struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewBookmark(db *gorm.DB, l *zap.SugaredLogger) *Bookmark {
	return &Bookmark{
		db:     db,
		logger: l,
	}
}

// List returns the user's live bookmarks, newest first. The raw query
// bypasses gorm callbacks, so the soft-delete filter is spelled out.
func (s *Bookmark) List(user *db.User) ([]db.Bookmark, error) {
	sql, args, err := squirrel.
		Select("id", "title", "url", "description", "created_at", "updated_at").
		From("bookmarks").
		Where(squirrel.Eq{
			"user_id":    user.ID,
			"deleted_at": nil,
		}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	bookmarks := make([]db.Bookmark, 0)
	res := s.db.Raw(sql, args...).Scan(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return bookmarks, nil
}

func (s *Bookmark) Create(user *db.User, title, url string, description *string) (*db.Bookmark, error) {
	model := db.Bookmark{
		Title:       title,
		URL:         url,
		Description: description,
		UserID:      user.ID,
	}

	res := s.db.Create(&model)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "create bookmark")
	}

	return &model, nil
}

// Get resolves a live bookmark and checks the view policy. An existing
// bookmark owned by someone else reports ErrNotFound, same as an absent id,
// so ids cannot be probed for existence.
func (s *Bookmark) Get(user *db.User, id uint64) (*db.Bookmark, error) {
	return s.find(user, id, policy.ActionView)
}

func (s *Bookmark) Update(user *db.User, id uint64, title, url string, description *string) (*db.Bookmark, error) {
	model, err := s.find(user, id, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}

	// Owner never changes; only the content fields are written.
	res := s.db.Model(model).Updates(map[string]interface{}{
		"title":       title,
		"url":         url,
		"description": description,
	})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update bookmark")
	}

	res = s.db.First(model, model.ID)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "reload bookmark")
	}

	return model, nil
}

// Delete soft-deletes: the row keeps its data but disappears from every
// subsequent read, so a second delete of the same id reports ErrNotFound.
func (s *Bookmark) Delete(user *db.User, id uint64) error {
	model, err := s.find(user, id, policy.ActionDelete)
	if err != nil {
		return err
	}

	res := s.db.Delete(model)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete bookmark")
	}
	return nil
}

func (s *Bookmark) find(user *db.User, id uint64, action policy.Action) (*db.Bookmark, error) {
	model := db.Bookmark{}
	res := s.db.First(&model, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(res.Error, "find bookmark")
	}

	if !policy.CanAccess(user.ID, model, action) {
		return nil, ErrNotFound
	}

	return &model, nil
}
