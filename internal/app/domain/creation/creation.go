package creation

import (
	"fmt"
	"time"
)

// Type classifies what a creation holds.
type Type string

const (
	TypeArticle      Type = "article"
	TypeBlogTitle    Type = "blog-title"
	TypeImage        Type = "image"
	TypeResumeReview Type = "resume-review"
)

// Valid reports whether t is one of the known creation types.
func (t Type) Valid() bool {
	switch t {
	case TypeArticle, TypeBlogTitle, TypeImage, TypeResumeReview:
		return true
	}
	return false
}

// Creation is one stored result of an AI tool. Content is generated text for
// text tools and a delivery URL for image tools.
type Creation struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Prompt    string    `db:"prompt" json:"prompt"`
	Content   string    `db:"content" json:"content"`
	Type      Type      `db:"type" json:"type"`
	Publish   bool      `db:"publish" json:"publish"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the fields every stored creation must carry.
func (c Creation) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("creation: user id is required")
	}
	if c.Prompt == "" {
		return fmt.Errorf("creation: prompt is required")
	}
	if c.Content == "" {
		return fmt.Errorf("creation: content is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("creation: unknown type %q", c.Type)
	}
	return nil
}
