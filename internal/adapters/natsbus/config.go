package natsbus

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config describes the NATS connection used as the pub/sub transport.
// MaxReconnects left unset means unlimited (-1); 0 disables reconnecting.
type Config struct {
	URL            string        `yaml:"url"`
	SubjectPrefix  string        `yaml:"subject_prefix"`
	Name           string        `yaml:"name"`
	Token          string        `yaml:"token"`
	MaxReconnects  *int          `yaml:"max_reconnects"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PendingBuffer  int           `yaml:"pending_buffer"`
}

func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "nats://127.0.0.1:4222"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "tempflow"
	}
	if c.Name == "" {
		c.Name = "tempflow"
	}
	if c.MaxReconnects == nil {
		unlimited := -1
		c.MaxReconnects = &unlimited
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PendingBuffer <= 0 {
		c.PendingBuffer = 4096
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.MaxReconnects != nil && *c.MaxReconnects < -1 {
		return fmt.Errorf("max_reconnects must be -1 (unlimited) or more, got %d", *c.MaxReconnects)
	}
	if strings.ContainsAny(c.SubjectPrefix, " *>") {
		return fmt.Errorf("subject_prefix %q must not contain spaces or wildcards", c.SubjectPrefix)
	}
	return nil
}

// Subject maps a domain id and topic name onto a NATS subject. Characters
// that are not legal in a subject token become underscores.
func Subject(prefix string, domainID int, topic string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '.', '*', '>':
			return '_'
		}
		return r
	}, topic)
	return fmt.Sprintf("%s.%d.%s", prefix, domainID, token)
}
