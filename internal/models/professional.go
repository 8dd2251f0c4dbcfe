package models

// Coordinate is a point on the globe in degrees. A nil component means the
// coordinate was never captured.
type Coordinate struct {
	Lat *float64 `json:"lat,omitempty" yaml:"lat"`
	Lng *float64 `json:"lng,omitempty" yaml:"lng"`
}

// NewCoordinate builds a fully populated coordinate.
func NewCoordinate(lat, lng float64) Coordinate {
	return Coordinate{Lat: &lat, Lng: &lng}
}

func (c Coordinate) Complete() bool {
	return c.Lat != nil && c.Lng != nil
}

type Location struct {
	Coordinate `yaml:",inline"`
	City       string `json:"city,omitempty" yaml:"city"`
}

type Pricing struct {
	HourlyRate  float64 `json:"hourlyRate" yaml:"hourly_rate"`
	MinimumRate float64 `json:"minimumRate" yaml:"minimum_rate"`
}

type Professional struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Email          string   `json:"email,omitempty" yaml:"email"`
	Phone          string   `json:"phone,omitempty" yaml:"phone"`
	Profession     string   `json:"profession" yaml:"profession"`
	Location       Location `json:"location" yaml:"location"`
	Pricing        Pricing  `json:"pricing" yaml:"pricing"`
	Bio            string   `json:"bio,omitempty" yaml:"bio"`
	Rating         float64  `json:"rating" yaml:"rating"`
	Availability   string   `json:"availability" yaml:"availability"`
	Skills         []string `json:"skills,omitempty" yaml:"skills"`
	TelegramChatID int64    `json:"telegramChatId,omitempty" yaml:"telegram_chat_id"`
}

func (p *Professional) IsAvailable() bool {
	return p.Availability == AvailabilityAvailable
}
