package tribute

import "github.com/lovepages/tribute-server/migrator"

type configGetter interface {
	GetTribute() Config
	GetMigrator() migrator.Config
}

type PlanLimits struct {
	MinImages    int  `yaml:"minImages"`
	MaxImages    int  `yaml:"maxImages"`
	Audio        bool `yaml:"audio"`
	ExpiryMonths int  `yaml:"expiryMonths"`
}

type SweepConfig struct {
	// Enabled turns on the periodic deletion of staged uploads whose draft was
	// garbage-collected. Off by default: those objects are unreachable either way.
	Enabled        bool `yaml:"enabled"`
	PeriodSec      int  `yaml:"periodSec"`
	OlderThanHours int  `yaml:"olderThanHours"`
}

type Config struct {
	// PageURL is the public base under which tribute pages are served.
	PageURL string `yaml:"pageUrl"`
	// CleanupAfterMin is the create-to-pay deadline for unpaid drafts.
	CleanupAfterMin int `yaml:"cleanupAfterMin"`
	// MarkPaidMaxElapsedSec bounds the retry budget for the paid flip after a
	// confirmed payment.
	MarkPaidMaxElapsedSec int         `yaml:"markPaidMaxElapsedSec"`
	Basic                 PlanLimits  `yaml:"basic"`
	Premium               PlanLimits  `yaml:"premium"`
	Sweep                 SweepConfig `yaml:"sweep"`
}

func (c Config) withDefaults() Config {
	if c.CleanupAfterMin <= 0 {
		c.CleanupAfterMin = 24 * 60
	}
	if c.MarkPaidMaxElapsedSec <= 0 {
		c.MarkPaidMaxElapsedSec = 120
	}
	if c.Basic == (PlanLimits{}) {
		c.Basic = PlanLimits{MinImages: 1, MaxImages: 1, ExpiryMonths: 6}
	}
	if c.Premium == (PlanLimits{}) {
		c.Premium = PlanLimits{MinImages: 1, MaxImages: 5, Audio: true}
	}
	if c.Sweep.PeriodSec <= 0 {
		c.Sweep.PeriodSec = 3600
	}
	if c.Sweep.OlderThanHours <= 0 {
		c.Sweep.OlderThanHours = 48
	}
	return c
}
