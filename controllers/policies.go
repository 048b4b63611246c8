package controllers

import (
	"context"
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

// Legal pages the portal publishes.
var policySlugs = []string{"privacy", "terms", "refund"}

type PolicyController struct {
	pages repository.PolicyRepository
	cache cache.Cache
	site  *services.SiteService
	ttl   time.Duration
}

func NewPolicyController(pages repository.PolicyRepository, c cache.Cache, site *services.SiteService, ttl time.Duration) *PolicyController {
	return &PolicyController{pages: pages, cache: c, site: site, ttl: ttl}
}

type PolicyRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Body    string `json:"body" validate:"required"`
	Version string `json:"version" validate:"omitempty,max=20"`
}

func validPolicySlug(slug string) bool {
	for _, s := range policySlugs {
		if s == slug {
			return true
		}
	}
	return false
}

// GetPolicy returns a legal page by slug.
func (pc *PolicyController) GetPolicy(c *fiber.Ctx) error {
	slug := strings.ToLower(c.Params("slug"))
	if !validPolicySlug(slug) {
		return respondError(c, services.ErrNotFound, "Policy")
	}
	page, err := cache.Fetch(c.UserContext(), pc.cache, cache.PrefixPolicies+slug, pc.ttl, func(ctx context.Context) (*models.PolicyPage, error) {
		return pc.pages.Get(ctx, slug)
	})
	if err != nil {
		return respondError(c, err, "Policy")
	}
	return c.JSON(fiber.Map{"policy": page})
}

func (pc *PolicyController) GetPolicies(c *fiber.Ctx) error {
	pages, err := pc.pages.List(c.UserContext())
	if err != nil {
		return respondError(c, err, "policies")
	}
	return c.JSON(fiber.Map{"policies": pages})
}

// UpsertPolicy creates or replaces a legal page (admin only).
func (pc *PolicyController) UpsertPolicy(c *fiber.Ctx) error {
	slug := strings.ToLower(c.Params("slug"))
	if !validPolicySlug(slug) {
		return badRequest(c, "Unknown policy: must be one of "+strings.Join(policySlugs, ", "))
	}
	var req PolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := utils.ValidateStruct(req); err != nil {
		return respondError(c, err, "policy")
	}

	page := models.PolicyPage{Slug: slug, Title: utils.SanitizeString(req.Title), Body: req.Body, Version: req.Version}
	if err := pc.pages.Upsert(c.UserContext(), &page); err != nil {
		return respondError(c, err, "policy")
	}

	cache.Invalidate(c.UserContext(), pc.cache, cache.PrefixPolicies)
	if pc.site != nil {
		pc.site.Invalidate()
	}
	middleware.LogActivity(c, "UPDATE", "policies", page.ID, fiber.Map{"slug": slug, "version": req.Version})
	return c.JSON(fiber.Map{"policy": page})
}
