package notify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/yourusername/billflow/models"
	"gopkg.in/yaml.v3"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelMail  Channel = "mail"
)

func (c Channel) valid() bool {
	return c == ChannelInApp || c == ChannelMail
}

// Rule lists the channels used for internal recipients (platform users) and
// external recipients (bare email addresses) of one event type.
type Rule struct {
	Internal []Channel `yaml:"internal"`
	External []Channel `yaml:"external"`
}

// ChannelPolicy maps event types to delivery channels.
type ChannelPolicy struct {
	Default Rule                      `yaml:"default"`
	Events  map[models.EventType]Rule `yaml:"events"`
}

// DefaultPolicy delivers every event in-app and by mail, except overdue
// reminders which reach the client by mail and admins in-app only.
func DefaultPolicy() ChannelPolicy {
	return ChannelPolicy{
		Default: Rule{
			Internal: []Channel{ChannelInApp, ChannelMail},
			External: []Channel{ChannelMail},
		},
		Events: map[models.EventType]Rule{
			models.EventInvoiceOverdueReminder: {
				Internal: []Channel{ChannelInApp},
				External: []Channel{ChannelMail},
			},
		},
	}
}

// ChannelsFor returns the channels r should receive ev on. External
// recipients never get in-app entries since they have no inbox.
func (p ChannelPolicy) ChannelsFor(eventType models.EventType, r Recipient) []Channel {
	rule, ok := p.Events[eventType]
	if !ok {
		rule = p.Default
	}
	if !r.Internal() {
		var out []Channel
		for _, ch := range rule.External {
			if ch != ChannelInApp {
				out = append(out, ch)
			}
		}
		return out
	}
	return rule.Internal
}

func (p ChannelPolicy) validate() error {
	check := func(where string, r Rule) error {
		for _, ch := range append(append([]Channel{}, r.Internal...), r.External...) {
			if !ch.valid() {
				return fmt.Errorf("%w: unknown channel %q in %s", ErrInvalidPolicy, ch, where)
			}
		}
		return nil
	}
	if err := check("default", p.Default); err != nil {
		return err
	}
	for eventType, rule := range p.Events {
		if err := check(string(eventType), rule); err != nil {
			return err
		}
	}
	return nil
}

// LoadPolicy reads channel overrides from a YAML file on top of
// DefaultPolicy. A missing file yields the defaults.
func LoadPolicy(path string) (ChannelPolicy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return policy, nil
		}
		return ChannelPolicy{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var overrides ChannelPolicy
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return ChannelPolicy{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if overrides.Default.Internal != nil {
		policy.Default.Internal = overrides.Default.Internal
	}
	if overrides.Default.External != nil {
		policy.Default.External = overrides.Default.External
	}
	for eventType, rule := range overrides.Events {
		policy.Events[eventType] = rule
	}

	if err := policy.validate(); err != nil {
		return ChannelPolicy{}, err
	}
	return policy, nil
}
