package geoip

// Config holds geolocation configuration.
type Config struct {
	DatabasePath string `env:"GEOIP_CITY_DB" envDefault:"GeoLite2-City.mmdb"`
	Language     string `env:"GEOIP_LANGUAGE" envDefault:"en"`
}

// NewFromConfig creates a Locator from cfg.
func NewFromConfig(cfg Config, opts ...Option) *Locator {
	configOpts := make([]Option, 0, 2+len(opts))
	if cfg.DatabasePath != "" {
		configOpts = append(configOpts, WithDatabase(cfg.DatabasePath))
	}
	if cfg.Language != "" {
		configOpts = append(configOpts, WithLanguage(cfg.Language))
	}
	return New(append(configOpts, opts...)...)
}
