package services

import (
	"context"
	"time"

	"edupath_go/models"
	"edupath_go/utils"
)

type NavLink struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type FooterSection struct {
	Title string    `json:"title"`
	Links []NavLink `json:"links"`
}

type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// SiteInfo is the marketing chrome rendered around every public page.
type SiteInfo struct {
	Name    string          `json:"name"`
	Navbar  []NavLink       `json:"navbar"`
	Footer  []FooterSection `json:"footer"`
	Contact ContactInfo     `json:"contact"`
}

// PolicySource lists the published legal pages.
type PolicySource func(ctx context.Context) ([]models.PolicyPage, error)

// SiteService builds the public navigation. Results are memoized for ttl.
type SiteService struct {
	name     string
	contact  ContactInfo
	policies PolicySource
	memo     *utils.Memo[string, SiteInfo]
}

func NewSiteService(name string, contact ContactInfo, policies PolicySource, ttl time.Duration) *SiteService {
	s := &SiteService{name: name, contact: contact, policies: policies}
	s.memo = utils.Memoize(ttl, s.build)
	return s
}

var baseNavbar = []NavLink{
	{Label: "Home", Href: "/"},
	{Label: "Courses", Href: "/courses"},
	{Label: "Blog", Href: "/blog"},
	{Label: "Contact", Href: "/contact"},
	{Label: "Log in", Href: "/login"},
	{Label: "Apply now", Href: "/register"},
}

// Info returns the site navigation for the given audience ("public",
// "student" or "admin").
func (s *SiteService) Info(audience string) (SiteInfo, error) {
	switch audience {
	case models.RoleStudent, models.RoleAdmin:
	default:
		audience = "public"
	}
	return s.memo.Get(audience)
}

// Invalidate drops memoized navigation after content changes.
func (s *SiteService) Invalidate() {
	s.memo.Reset()
}

func (s *SiteService) build(audience string) (SiteInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var legal []NavLink
	if s.policies != nil {
		pages, err := s.policies(ctx)
		if err != nil {
			return SiteInfo{}, err
		}
		for _, p := range pages {
			legal = append(legal, NavLink{Label: p.Title, Href: "/legal/" + p.Slug})
		}
	}

	navbar := make([]NavLink, 0, len(baseNavbar))
	switch audience {
	case models.RoleStudent:
		navbar = append(navbar,
			NavLink{Label: "Dashboard", Href: "/student/dashboard"},
			NavLink{Label: "Applications", Href: "/student/applications"},
			NavLink{Label: "Appointments", Href: "/student/appointments"},
			NavLink{Label: "General info", Href: "/student/general-info"},
			NavLink{Label: "Courses", Href: "/courses"},
		)
	case models.RoleAdmin:
		navbar = append(navbar,
			NavLink{Label: "Dashboard", Href: "/admin/dashboard"},
			NavLink{Label: "Registrations", Href: "/admin/registrations"},
			NavLink{Label: "Students", Href: "/admin/students"},
			NavLink{Label: "Applications", Href: "/admin/applications"},
			NavLink{Label: "Appointments", Href: "/admin/appointments"},
			NavLink{Label: "Content", Href: "/admin/content"},
		)
	default:
		navbar = append(navbar, baseNavbar...)
	}

	return SiteInfo{
		Name:   s.name,
		Navbar: navbar,
		Footer: []FooterSection{
			{Title: "Explore", Links: []NavLink{
				{Label: "Courses", Href: "/courses"},
				{Label: "Blog", Href: "/blog"},
				{Label: "Book a consultation", Href: "/register"},
			}},
			{Title: "Legal", Links: legal},
		},
		Contact: s.contact,
	}, nil
}
