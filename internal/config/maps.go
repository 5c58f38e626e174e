package config

type MapsConfig struct {
	Provider   string            `yaml:"provider"` // google, none
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
	Region string `yaml:"region"`
}

func defaultMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider:   "none",
		GoogleMaps: &GoogleMapsConfig{},
	}
}

func applyMapsEnv(c *MapsConfig) {
	c.Provider = getEnv("MAPS_PROVIDER", c.Provider)
	c.GoogleMaps.APIKey = getEnv("GOOGLE_MAPS_API_KEY", c.GoogleMaps.APIKey)
	c.GoogleMaps.Region = getEnv("GOOGLE_MAPS_REGION", c.GoogleMaps.Region)
}
