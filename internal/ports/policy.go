package ports

import "time"

type Policy struct {
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
	TargetSamples uint64        `yaml:"target_samples"` // 0 = run until shutdown
	PublishPeriod time.Duration `yaml:"publish_period"`

	// MaxConsecutiveTimeouts stops a subscriber after that many timeouts in a
	// row. 0 keeps waiting forever.
	MaxConsecutiveTimeouts int `yaml:"max_consecutive_timeouts"`

	DisposeOnExit bool `yaml:"dispose_on_exit"`
}
