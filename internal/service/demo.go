package service

import "fixora/internal/models"

const demoCity = "Bangalore, Karnataka"

// DemoProfessionals returns the sample profiles used to try the marketplace
// without a seed file.
func DemoProfessionals() []models.Professional {
	location := func() models.Location {
		return models.Location{
			Coordinate: models.NewCoordinate(models.DefaultLatitude, models.DefaultLongitude),
			City:       demoCity,
		}
	}

	return []models.Professional{
		{
			ID:           "carpenter_demo",
			Name:         "Rajesh Kumar",
			Email:        "carpenter@demo.com",
			Phone:        "+91 98765 43210",
			Profession:   models.ProfessionCarpenter,
			Location:     location(),
			Pricing:      models.Pricing{HourlyRate: 400, MinimumRate: 800},
			Bio:          "Experienced carpenter with 10+ years in residential and commercial projects.",
			Rating:       4.8,
			Availability: models.AvailabilityAvailable,
			Skills:       []string{"Framing", "Finishing", "Repairs", "Custom Work"},
		},
		{
			ID:           "plumber_demo",
			Name:         "Suresh Reddy",
			Email:        "plumber@demo.com",
			Phone:        "+91 87654 32109",
			Profession:   models.ProfessionPlumber,
			Location:     location(),
			Pricing:      models.Pricing{HourlyRate: 350, MinimumRate: 700},
			Bio:          "Licensed plumber specializing in emergency repairs and installations.",
			Rating:       4.9,
			Availability: models.AvailabilityAvailable,
			Skills:       []string{"Pipe Repair", "Installation", "Emergency", "Drain Cleaning"},
		},
		{
			ID:           "electrician_demo",
			Name:         "Priya Sharma",
			Email:        "electrician@demo.com",
			Phone:        "+91 76543 21098",
			Profession:   models.ProfessionElectrician,
			Location:     location(),
			Pricing:      models.Pricing{HourlyRate: 450, MinimumRate: 900},
			Bio:          "Master electrician with expertise in residential and commercial wiring.",
			Rating:       4.7,
			Availability: models.AvailabilityAvailable,
			Skills:       []string{"Wiring", "Panel Upgrades", "Troubleshooting", "Smart Home"},
		},
	}
}
