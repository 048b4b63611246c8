package controllers

import (
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

type SiteController struct {
	site *services.SiteService
}

func NewSiteController(site *services.SiteService) *SiteController {
	return &SiteController{site: site}
}

// GetSiteInfo returns navbar, footer and contact details. ?audience=
// selects the student or admin navbar.
func (sc *SiteController) GetSiteInfo(c *fiber.Ctx) error {
	info, err := sc.site.Info(c.Query("audience", "public"))
	if err != nil {
		return respondError(c, err, "site information")
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return c.JSON(info)
}
