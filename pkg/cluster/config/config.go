// Package config decodes the upward init(option_string) argument, the
// only configuration surface this core owns (SPEC_FULL.md §6 notes the
// core has no environment/CLI surface of its own).
package config

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// DefaultGroupName is the fixed 8-byte group identifier used unless the
// option string overrides it.
const DefaultGroupName = "sheepdog"

// Config is the decoded form of the option string.
type Config struct {
	// GroupName is the named process group joined on the substrate.
	GroupName string `mapstructure:"group"`

	// BindAddr/BindPort is where this node's transport listens.
	BindAddr string `mapstructure:"bind_addr"`
	BindPort int    `mapstructure:"bind_port"`

	// AdvertiseAddr/AdvertisePort is what this node tells the rest of
	// the group to dial, if different from BindAddr/BindPort (e.g.
	// behind NAT).
	AdvertiseAddr string `mapstructure:"advertise_addr"`
	AdvertisePort int    `mapstructure:"advertise_port"`

	// InitRetryBudget bounds the number of ~200ms retries the transport
	// init path takes on a transient try-again signal (SPEC_FULL.md §7).
	InitRetryBudget int `mapstructure:"init_retries"`

	// SendBackoff is the backoff between retried sends on a transient
	// try-again signal.
	SendBackoff time.Duration `mapstructure:"-"`
}

// Default returns a Config with the documented defaults applied.
func Default() Config {
	return Config{
		GroupName:       DefaultGroupName,
		BindAddr:        "0.0.0.0",
		BindPort:        7946,
		InitRetryBudget: 10,
		SendBackoff:     time.Second,
	}
}

// Parse decodes a comma-separated "key=value,key=value" option string
// (the same shape hashicorp/serf's agent command-line flags collapse
// to) over the defaults, using mitchellh/mapstructure so new fields
// can be added to Config without touching the parser.
func Parse(optionString string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(optionString) == "" {
		return cfg, nil
	}

	raw := map[string]interface{}{}
	for _, pair := range strings.Split(optionString, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return cfg, errors.Errorf("config: malformed option %q, want key=value", pair)
		}
		raw[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, errors.Wrap(err, "config: building decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, errors.Wrap(err, "config: decoding option string")
	}
	if cfg.GroupName == "" {
		cfg.GroupName = DefaultGroupName
	}
	return cfg, nil
}
