package notify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskhive/taskhive/internal/types"
)

// Rules maps a notification type to its delivery route. The table is
// total: Resolve never fails, unlisted and unknown types fall through to
// the info channel.
type Rules map[types.NotificationType]Route

// DefaultRules is the built-in routing table.
func DefaultRules() Rules {
	return Rules{
		types.TypeTaskAssigned:  {Channel: ChannelDefault, Intent: "task"},
		types.TypeTaskDue:       {Channel: ChannelUrgent, Intent: "task"},
		types.TypeRemarkAdded:   {Channel: ChannelDefault, Intent: "task"},
		types.TypeStatusChanged: {Channel: ChannelInfo, Intent: "task"},
		types.TypeJoinRequested: {Channel: ChannelDefault, Intent: "workspace"},
		types.TypeJoinApproved:  {Channel: ChannelDefault, Intent: "workspace"},
		types.TypeAnnouncement:  {Channel: ChannelInfo, Intent: "feed"},
		types.TypeUnknown:       {Channel: ChannelInfo, Intent: "feed"},
	}
}

// Resolve returns the route for t, defaulting to the info channel.
func (r Rules) Resolve(t types.NotificationType) Route {
	if route, ok := r[t]; ok {
		return route
	}
	return Route{Channel: ChannelInfo, Intent: "feed"}
}

// LoadRules reads a routing override file and layers it over the
// defaults, so a partial file only changes the types it names.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var overrides map[string]Route
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := DefaultRules()
	for raw, route := range overrides {
		t := types.ParseNotificationType(raw)
		if t == types.TypeUnknown && raw != string(types.TypeUnknown) {
			return nil, fmt.Errorf("rules file %s names unknown notification type %q", path, raw)
		}
		switch route.Channel {
		case ChannelUrgent, ChannelDefault, ChannelInfo:
		default:
			return nil, fmt.Errorf("rules file %s has invalid channel %q for %q", path, route.Channel, raw)
		}
		rules[t] = route
	}
	return rules, nil
}
