package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marker-labs/marker-back/internal/config"
)

type (
	// Model is gorm.Model with a uint64 primary key and without the
	// soft-delete column; only bookmarks carry one.
	Model struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		Model
		Name         string `gorm:"not null"`
		Email        string `gorm:"unique;not null"`
		PasswordHash string `gorm:"not null"`
		Bookmarks    []Bookmark `gorm:"constraint:OnDelete:CASCADE"`
		Tokens       []Token    `gorm:"constraint:OnDelete:CASCADE"`
	}

	// Token is one issued bearer credential. A user may hold several live
	// rows at once; revocation deletes exactly one row.
	Token struct {
		Model
		Value  string `gorm:"uniqueIndex;not null"`
		UserID uint64 `gorm:"index;not null"`
		User   User
	}

	Bookmark struct {
		Model
		Title       string `gorm:"not null"`
		URL         string `gorm:"not null"`
		Description *string
		UserID      uint64 `gorm:"not null"`
		User        User
		DeletedAt   gorm.DeletedAt `gorm:"index"`
	}
)

// OwnerID reports the owning user, for policy checks.
func (b Bookmark) OwnerID() uint64 {
	return b.UserID
}

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: true,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&Token{}); err != nil {
		return errors.Wrap(err, "migrate token")
	}
	if err := db.AutoMigrate(&Bookmark{}); err != nil {
		return errors.Wrap(err, "migrate bookmark")
	}
	// Composite index serving the owner-scoped, newest-first list query;
	// created_at sits in the embedded base model, out of tag reach.
	res := db.Exec("CREATE INDEX IF NOT EXISTS idx_bookmarks_user_created ON bookmarks (user_id, created_at)")
	if res.Error != nil {
		return errors.Wrap(res.Error, "create bookmark list index")
	}
	return nil
}
