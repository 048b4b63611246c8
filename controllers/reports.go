package controllers

import (
	"fmt"
	"time"

	"edupath_go/middleware"
	"edupath_go/services"

	"github.com/gofiber/fiber/v2"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportController struct {
	service *services.ReportService
}

func NewReportController(service *services.ReportService) *ReportController {
	return &ReportController{service: service}
}

// ExportWorkbook downloads the registration queue and applications as XLSX.
func (rc *ReportController) ExportWorkbook(c *fiber.Ctx) error {
	data, err := rc.service.ExportBytes(c.UserContext())
	if err != nil {
		return respondError(c, err, "report")
	}
	name := fmt.Sprintf("edupath_report_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Set(fiber.HeaderContentType, xlsxMIME)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	middleware.LogActivity(c, "EXPORT", "reports", 0, fiber.Map{"file": name, "bytes": len(data)})
	return c.Send(data)
}
