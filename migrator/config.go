package migrator

type configGetter interface {
	GetMigrator() Config
}

type Config struct {
	// PublicURL is the public base under which bucket keys are served.
	PublicURL string `yaml:"publicUrl"`
	// StagingPrefix is the key prefix of the staging namespace; stripping it
	// yields the permanent key.
	StagingPrefix string `yaml:"stagingPrefix"`
	TimeoutSec    int    `yaml:"timeoutSec"`
}
