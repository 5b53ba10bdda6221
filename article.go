package newsagg

import (
	"time"
)

// Article is a normalized news item.
//
// Keyword is left empty for articles held by the ephemeral cache, where the
// keyword is the cache key rather than a field.
type Article struct {
	ID          string    `json:"id" bson:"_id" gorm:"primaryKey"`
	URL         string    `json:"url" bson:"url"`
	Image       string    `json:"image,omitempty" bson:"image,omitempty"`
	Title       string    `json:"title" bson:"title"`
	Source      string    `json:"source" bson:"source"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	PublishedAt time.Time `json:"publishedAt" bson:"published_at"`
	Keyword     string    `json:"keyword,omitempty" bson:"keyword,omitempty" gorm:"index:idx_articles_keyword_seq,priority:1"`
	Read        bool      `json:"read" bson:"read" gorm:"index"`
	Favorite    bool      `json:"favorite" bson:"favorite" gorm:"index"`
	CachedAt    time.Time `json:"cachedAt" bson:"cached_at" gorm:"index"`

	// write order across batches, used for ordering durable rows
	Seq int64 `json:"-" bson:"seq" gorm:"index:idx_articles_keyword_seq,priority:2"`
}

// ArticleFlag is a boolean user mark on an article.
type ArticleFlag string

const (
	FlagRead     ArticleFlag = "read"
	FlagFavorite ArticleFlag = "favorite"
)

// set given flag on the article
func (a *Article) setFlag(flag ArticleFlag) {
	switch flag {
	case FlagRead:
		a.Read = true
	case FlagFavorite:
		a.Favorite = true
	}
}

// check if given flag is set on the article
func (a Article) hasFlag(flag ArticleFlag) bool {
	switch flag {
	case FlagRead:
		return a.Read
	case FlagFavorite:
		return a.Favorite
	default:
		return false
	}
}

// check if given flag is one of the known ones
func (f ArticleFlag) valid() bool {
	return f == FlagRead || f == FlagFavorite
}
