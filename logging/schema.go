package logging

import (
	"fmt"
	"sort"
	"strings"
)

// schema names the fields a given event kind must carry, so a typo in a
// field name fails a unit test rather than silently breaking a dashboard
// query downstream.
type schema struct {
	Event    string
	Required []string
}

var schemas = map[string]schema{
	"fair_price_update": {
		Event:    "fair_price_update",
		Required: []string{"symbol", "fair_price", "local_mid", "offset", "sample_count"},
	},
	"quote_generated": {
		Event:    "quote_generated",
		Required: []string{"symbol", "side", "price", "size", "close_mode"},
	},
	"order_update": {
		Event:    "order_update",
		Required: []string{"symbol", "order_id", "status"},
	},
	"fill_received": {
		Event:    "fill_received",
		Required: []string{"symbol", "order_id", "side", "price", "quantity"},
	},
	"position_reconciled": {
		Event:    "position_reconciled",
		Required: []string{"symbol", "size_base", "corrected"},
	},
	"atomic_submission_failed": {
		Event:    "atomic_submission_failed",
		Required: []string{"symbol", "chunk_index", "error"},
	},
	"feed_failover": {
		Event:    "feed_failover",
		Required: []string{"symbol", "from_feed", "to_feed"},
	},
	"depth_snapshot": {
		Event:    "depth_snapshot",
		Required: []string{"symbol", "bid", "ask"},
	},
}

// Known returns every registered event name.
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks that fields contains every key the event's schema
// requires. An event with no registered schema always passes.
func Validate(event string, fields map[string]any) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}
