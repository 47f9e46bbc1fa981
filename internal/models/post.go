package models

import "time"

// Post is a bulletin entry on the community board.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Category  string    `gorm:"size:64;index" json:"category"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Comments []Comment `gorm:"constraint:OnDelete:CASCADE" json:"comments,omitempty"`
}

// Comment is a reply attached to a post.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CategoryCount pairs a post category with the number of posts in it.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
