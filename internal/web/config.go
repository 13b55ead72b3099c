package web

// Config represents the web server configuration
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: 8080,
	}
}
