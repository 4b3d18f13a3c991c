package database

type DatabaseConfig struct {
	User     string `yaml:"username" env:"DB_USERNAME" env-default:"postgres"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"postgres"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"TROVE_DB"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"DB_PORT" env-default:"5432"`

	// ConnectAttempts bounds how many times the initial ping is retried
	// while the database server is still starting.
	ConnectAttempts int `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS" env-default:"5"`
}
