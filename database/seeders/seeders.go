package seeders

import (
	"edupath_go/database"
	"edupath_go/models"
	"edupath_go/utils"
	"log"
	"time"
)

// SeedAll runs all seeders
func SeedAll() {
	log.Println("Starting database seeding...")

	SeedUsers()
	SeedCourses()
	SeedPolicies()
	SeedBlogPosts()

	log.Println("Database seeding completed successfully!")
}

// SeedUsers seeds the staff accounts
func SeedUsers() {
	var count int64
	database.DB.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		log.Println("Users already seeded, skipping...")
		return
	}

	hashedPassword, _ := utils.HashPassword("password123")

	users := []models.User{
		{
			Email:    "admin@edupath.local",
			Password: hashedPassword,
			FullName: "Portal Admin",
			Phone:    "0812345678",
			Role:     models.RoleAdmin,
			Status:   models.UserActive,
		},
		{
			Email:    "advisor.mei@edupath.local",
			Password: hashedPassword,
			FullName: "Mei Tanaka",
			Phone:    "0812345679",
			Role:     models.RoleAdmin,
			Status:   models.UserActive,
		},
	}

	for _, user := range users {
		if err := database.DB.Create(&user).Error; err != nil {
			log.Printf("Error seeding user %s: %v", user.Email, err)
		}
	}

	log.Println("Users seeded successfully")
}

// SeedCourses seeds the course catalogue
func SeedCourses() {
	var count int64
	database.DB.Model(&models.Course{}).Count(&count)
	if count > 0 {
		log.Println("Courses already seeded, skipping...")
		return
	}

	courses := []models.Course{
		{
			Title:       "MSc Data Science",
			Code:        "UK-UOM-MSC-DS",
			University:  "University of Manchester",
			Country:     "United Kingdom",
			Level:       "Postgraduate",
			Duration:    "1 year",
			TuitionFee:  "GBP 32,000",
			Intakes:     "September",
			Description: "Taught master's covering statistics, machine learning and data engineering.",
			Active:      true,
		},
		{
			Title:       "Bachelor of Commerce",
			Code:        "AU-UNIMELB-BCOM",
			University:  "University of Melbourne",
			Country:     "Australia",
			Level:       "Undergraduate",
			Duration:    "3 years",
			TuitionFee:  "AUD 49,000 / year",
			Intakes:     "February, July",
			Description: "Majors in accounting, finance, economics and marketing.",
			Active:      true,
		},
		{
			Title:       "MEng Software Engineering",
			Code:        "CA-UOT-MENG-SE",
			University:  "University of Toronto",
			Country:     "Canada",
			Level:       "Postgraduate",
			Duration:    "16 months",
			TuitionFee:  "CAD 58,000",
			Intakes:     "September, January",
			Description: "Course-based professional master's with an optional internship.",
			Active:      true,
		},
		{
			Title:       "Foundation Year (Business)",
			Code:        "UK-INTO-FY-BUS",
			University:  "INTO Newcastle",
			Country:     "United Kingdom",
			Level:       "Foundation",
			Duration:    "9 months",
			TuitionFee:  "GBP 19,500",
			Intakes:     "September, January",
			Description: "Pathway into first-year undergraduate business programs.",
			Active:      true,
		},
	}

	for _, course := range courses {
		if err := database.DB.Create(&course).Error; err != nil {
			log.Printf("Error seeding course %s: %v", course.Code, err)
		}
	}

	log.Println("Courses seeded successfully")
}

// SeedPolicies seeds the legal pages linked from the footer
func SeedPolicies() {
	var count int64
	database.DB.Model(&models.PolicyPage{}).Count(&count)
	if count > 0 {
		log.Println("Policies already seeded, skipping...")
		return
	}

	policies := []models.PolicyPage{
		{Slug: "privacy", Title: "Privacy Policy", Version: "1.0", Body: "We collect the information you provide during registration and your application to deliver advisory services. Documents are stored encrypted and shared with institutions only with your consent."},
		{Slug: "terms", Title: "Terms of Service", Version: "1.0", Body: "By registering you agree to provide accurate information. Advisory outcomes depend on third-party institutions and are not guaranteed."},
		{Slug: "refund", Title: "Refund Policy", Version: "1.0", Body: "The registration fee is refundable in full if your registration is rejected. Approved registrations are non-refundable."},
	}

	for _, p := range policies {
		if err := database.DB.Create(&p).Error; err != nil {
			log.Printf("Error seeding policy %s: %v", p.Slug, err)
		}
	}

	log.Println("Policies seeded successfully")
}

// SeedBlogPosts seeds a couple of published articles
func SeedBlogPosts() {
	var count int64
	database.DB.Model(&models.BlogPost{}).Count(&count)
	if count > 0 {
		log.Println("Blog posts already seeded, skipping...")
		return
	}

	published := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	posts := []models.BlogPost{
		{
			Slug:        "choosing-your-study-destination",
			Title:       "Choosing Your Study Destination",
			Summary:     "How tuition, post-study work rights and cost of living compare across the UK, Australia and Canada.",
			Body:        "Start with the program, not the country. Then compare total cost, visa conditions and work rights after graduation.",
			Tags:        "guides,destinations",
			Published:   true,
			PublishedAt: &published,
		},
		{
			Slug:        "visa-interview-checklist",
			Title:       "Visa Interview Checklist",
			Summary:     "Documents and answers to prepare before your student visa appointment.",
			Body:        "Bring your passport, CAS or COE, proof of funds and your offer letter. Be ready to explain your study plan.",
			Tags:        "visa",
			Published:   true,
			PublishedAt: &published,
		},
	}

	for _, post := range posts {
		if err := database.DB.Create(&post).Error; err != nil {
			log.Printf("Error seeding blog post %s: %v", post.Slug, err)
		}
	}

	log.Println("Blog posts seeded successfully")
}
