package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	newsagg "github.com/airtribe-projects/news-aggregator-api-souzaavi"
)

const (
	rssTitleFormat = "News: %s"
	rssDescription = "Cached news articles"

	subjectKey = "subject"
)

// NewsService is the part of the aggregation engine served over HTTP.
type NewsService interface {
	FetchNews(ctx context.Context, query string, mode newsagg.Mode) ([]newsagg.Article, error)
	MarkAsRead(ctx context.Context, id string) (*newsagg.Article, error)
	MarkAsFavorite(ctx context.Context, id string) (*newsagg.Article, error)
	ListRead(ctx context.Context) ([]newsagg.Article, error)
	ListFavorite(ctx context.Context) ([]newsagg.Article, error)
	PublishXML(ctx context.Context, keyword, title, link, description string) ([]byte, error)
}

// Authorizer verifies a bearer token and returns its subject.
type Authorizer func(token string) (subject string, err error)

// NewsHandler serves news requests.
type NewsHandler struct {
	news      NewsService
	authorize Authorizer
}

// NewNewsHandler returns a new handler. A nil authorizer lets every request through.
func NewNewsHandler(news NewsService, authorize Authorizer) *NewsHandler {
	return &NewsHandler{news: news, authorize: authorize}
}

// Register adds the news routes to given router group.
func (h *NewsHandler) Register(r gin.IRouter) {
	g := r.Group("/news", h.Authorize)

	g.GET("", h.GetNews)
	g.GET("/search/:keyword", h.GetNews)
	g.GET("/live/:keyword", h.GetLiveFeed)
	g.GET("/read", h.GetRead)
	g.GET("/favorite", h.GetFavorite)
	g.GET("/rss/:keyword", h.GetRSS)
	g.POST("/:id/read", h.MarkRead)
	g.POST("/:id/favorite", h.MarkFavorite)
}

// Authorize rejects requests without a valid bearer token.
func (h *NewsHandler) Authorize(c *gin.Context) {
	if h.authorize == nil {
		c.Next()
		return
	}

	token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		abortWithErrors(c, http.StatusUnauthorized, "Unauthorized Request")
		return
	}

	subject, err := h.authorize(strings.TrimSpace(token))
	if err != nil {
		slog.Warn("rejected token", "path", c.FullPath(), "error", err)
		abortWithErrors(c, http.StatusUnauthorized, "Unauthorized Request")
		return
	}

	c.Set(subjectKey, subject)
	c.Next()
}

// GetNews searches news for the keyword (or the default one).
func (h *NewsHandler) GetNews(c *gin.Context) {
	h.fetch(c, newsagg.ModeSearch)
}

// GetLiveFeed serves the live feed of the keyword.
func (h *NewsHandler) GetLiveFeed(c *gin.Context) {
	h.fetch(c, newsagg.ModeLiveFeed)
}

func (h *NewsHandler) fetch(c *gin.Context, mode newsagg.Mode) {
	keyword := c.Param("keyword")
	if keyword == "" {
		keyword = newsagg.DefaultKeyword
	}

	news, err := h.news.FetchNews(c.Request.Context(), keyword, mode)
	if err != nil {
		renderError(c, err, "keyword", keyword, "mode", string(mode))
		return
	}

	c.JSON(http.StatusOK, gin.H{"news": news})
}

// MarkRead marks an article as read.
func (h *NewsHandler) MarkRead(c *gin.Context) {
	h.mark(c, h.news.MarkAsRead)
}

// MarkFavorite marks an article as favorite.
func (h *NewsHandler) MarkFavorite(c *gin.Context) {
	h.mark(c, h.news.MarkAsFavorite)
}

func (h *NewsHandler) mark(c *gin.Context, fn func(context.Context, string) (*newsagg.Article, error)) {
	id := c.Param("id")

	article, err := fn(c.Request.Context(), id)
	if err != nil {
		renderError(c, err, "article_id", id)
		return
	}

	c.JSON(http.StatusOK, gin.H{"article": article})
}

// GetRead lists articles marked as read.
func (h *NewsHandler) GetRead(c *gin.Context) {
	h.list(c, h.news.ListRead)
}

// GetFavorite lists articles marked as favorite.
func (h *NewsHandler) GetFavorite(c *gin.Context) {
	h.list(c, h.news.ListFavorite)
}

func (h *NewsHandler) list(c *gin.Context, fn func(context.Context) ([]newsagg.Article, error)) {
	articles, err := fn(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"news": articles})
}

// GetRSS serves the cached articles of the keyword as RSS.
func (h *NewsHandler) GetRSS(c *gin.Context) {
	keyword := c.Param("keyword")

	link := "http://" + c.Request.Host + c.Request.URL.Path
	bytes, err := h.news.PublishXML(c.Request.Context(), keyword, fmt.Sprintf(rssTitleFormat, keyword), link, rssDescription)
	if err != nil {
		renderError(c, err, "keyword", keyword)
		return
	}

	c.Header("Cache-Control", "max-age=60")
	c.Data(http.StatusOK, newsagg.PublishContentType, bytes)
}

// render given error as `{"errors": [...]}`
func renderError(c *gin.Context, err error, attrs ...any) {
	status, messages := http.StatusInternalServerError, []string{err.Error()}

	var custom *newsagg.CustomError
	if errors.As(err, &custom) {
		status, messages = custom.Status, custom.Messages()
	}

	slog.Error("request failed", append([]any{"path", c.FullPath(), "status", status, "error", err}, attrs...)...)

	c.JSON(status, gin.H{"errors": messages})
}

func abortWithErrors(c *gin.Context, status int, messages ...string) {
	c.AbortWithStatusJSON(status, gin.H{"errors": messages})
}
