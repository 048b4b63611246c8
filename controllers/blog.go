package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edupath_go/cache"
	"edupath_go/middleware"
	"edupath_go/models"
	"edupath_go/repository"
	"edupath_go/services"
	"edupath_go/utils"

	"github.com/gofiber/fiber/v2"
)

type BlogController struct {
	posts repository.BlogRepository
	cache cache.Cache
	ttl   time.Duration
}

func NewBlogController(posts repository.BlogRepository, c cache.Cache, ttl time.Duration) *BlogController {
	return &BlogController{posts: posts, cache: c, ttl: ttl}
}

type BlogPostRequest struct {
	Title      string `json:"title" validate:"required,max=255"`
	Slug       string `json:"slug" validate:"omitempty,max=200"`
	Summary    string `json:"summary" validate:"omitempty,max=500"`
	Body       string `json:"body"`
	CoverImage string `json:"cover_image" validate:"omitempty,max=500"`
	Tags       string `json:"tags" validate:"omitempty,max=255"`
	Published  bool   `json:"published"`
}

type blogPage struct {
	Posts []models.BlogPost `json:"posts"`
	Total int64             `json:"total"`
}

func (bc *BlogController) listPosts(ctx context.Context, tag string, publishedOnly bool, page repository.Page) (blogPage, error) {
	posts, total, err := bc.posts.List(ctx, repository.BlogFilter{
		Tag:           strings.TrimSpace(tag),
		PublishedOnly: publishedOnly,
		Page:          page,
	})
	return blogPage{Posts: posts, Total: total}, err
}

// GetPublishedPosts lists published posts through the cache.
func (bc *BlogController) GetPublishedPosts(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	key := fmt.Sprintf("%slist:%s:%d:%d", cache.PrefixBlog, strings.ToLower(c.Query("tag")), page.Page, page.Limit)
	res, err := cache.Fetch(c.UserContext(), bc.cache, key, bc.ttl, func(ctx context.Context) (blogPage, error) {
		return bc.listPosts(ctx, c.Query("tag"), true, page)
	})
	if err != nil {
		return respondError(c, err, "posts")
	}
	return c.JSON(paginated("posts", res.Posts, res.Total, page))
}

func (bc *BlogController) GetPostBySlug(c *fiber.Ctx) error {
	slug := strings.ToLower(c.Params("slug"))
	post, err := cache.Fetch(c.UserContext(), bc.cache, cache.PrefixBlog+"post:"+slug, bc.ttl, func(ctx context.Context) (*models.BlogPost, error) {
		return bc.posts.GetPublished(ctx, slug)
	})
	if err != nil {
		return respondError(c, err, "Post")
	}
	return c.JSON(fiber.Map{"post": post})
}

// GetAllPosts lists drafts and published posts for staff.
func (bc *BlogController) GetAllPosts(c *fiber.Ctx) error {
	page := pageFromQuery(c)
	res, err := bc.listPosts(c.UserContext(), c.Query("tag"), false, page)
	if err != nil {
		return respondError(c, err, "posts")
	}
	return c.JSON(paginated("posts", res.Posts, res.Total, page))
}

func (bc *BlogController) CreatePost(c *fiber.Ctx) error {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return err
	}
	var req BlogPostRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	post := models.BlogPost{AuthorID: user.ID}
	if err := applyPost(&post, req); err != nil {
		return respondError(c, err, "post")
	}
	if err := bc.posts.Create(c.UserContext(), &post); err != nil {
		return respondError(c, translateDuplicate(err, "slug already in use"), "post")
	}
	bc.invalidate(c)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"post": post})
}

func (bc *BlogController) UpdatePost(c *fiber.Ctx) error {
	post, err := bc.find(c)
	if err != nil {
		return respondError(c, err, "Post")
	}
	var req BlogPostRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := applyPost(post, req); err != nil {
		return respondError(c, err, "post")
	}
	if err := bc.posts.Update(c.UserContext(), post); err != nil {
		return respondError(c, translateDuplicate(err, "slug already in use"), "post")
	}
	bc.invalidate(c)
	return c.JSON(fiber.Map{"post": post})
}

func (bc *BlogController) DeletePost(c *fiber.Ctx) error {
	post, err := bc.find(c)
	if err != nil {
		return respondError(c, err, "Post")
	}
	if err := bc.posts.Delete(c.UserContext(), post.ID); err != nil {
		return respondError(c, err, "post")
	}
	bc.invalidate(c)
	return c.JSON(fiber.Map{"message": "Post deleted successfully"})
}

func (bc *BlogController) find(c *fiber.Ctx) (*models.BlogPost, error) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, services.ErrNotFound
	}
	return bc.posts.GetByID(c.UserContext(), id)
}

func (bc *BlogController) invalidate(c *fiber.Ctx) {
	cache.Invalidate(c.UserContext(), bc.cache, cache.PrefixBlog)
}

// applyPost copies a request onto a post. The slug defaults to the title
// and PublishedAt is set the first time a post goes live.
func applyPost(p *models.BlogPost, req BlogPostRequest) error {
	req.Title = utils.SanitizeString(req.Title)
	if err := utils.ValidateStruct(req); err != nil {
		return err
	}
	slug := utils.Slugify(req.Slug)
	if slug == "" {
		slug = utils.Slugify(req.Title)
	}
	if slug == "" {
		return &utils.ValidationError{Fields: map[string]string{"slug": "cannot be derived from title"}}
	}
	p.Title = req.Title
	p.Slug = slug
	p.Summary = req.Summary
	p.Body = req.Body
	p.CoverImage = req.CoverImage
	p.Tags = req.Tags
	p.Published = req.Published
	if req.Published && p.PublishedAt == nil {
		now := time.Now()
		p.PublishedAt = &now
	}
	return nil
}

func translateDuplicate(err error, msg string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%w: %s", services.ErrConflict, msg)
	}
	return err
}
