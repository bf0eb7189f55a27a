package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath sets the path of the loaded configuration file so the
// application can watch it for changes. Empty disables watching.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}
