package memocache

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

// ParseBool interprets loosely typed flags the way configuration arrays and
// query strings carry them: "1", "true", "on", "yes" (any case) and the number
// 1 are true, everything else is false.
func ParseBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "on", "yes":
			return true
		}
		return false
	case int:
		return b == 1
	case int8:
		return b == 1
	case int16:
		return b == 1
	case int32:
		return b == 1
	case int64:
		return b == 1
	case uint:
		return b == 1
	case uint8:
		return b == 1
	case uint16:
		return b == 1
	case uint32:
		return b == 1
	case uint64:
		return b == 1
	case float32:
		return b == 1
	case float64:
		return b == 1
	default:
		return false
	}
}

// ParseCallOptions builds CallOptions from a loosely typed map
// (keys: expire, group, single, scope, network_global).
func ParseCallOptions(m map[string]any) (CallOptions, error) {
	var o CallOptions
	for k, v := range m {
		switch k {
		case "expire":
			d, err := parseExpire(v)
			if err != nil {
				return CallOptions{}, err
			}
			o.Expire = d
		case "group":
			s, ok := v.(string)
			if !ok && v != nil {
				return CallOptions{}, fmt.Errorf("memocache: option group: want string, got %T", v)
			}
			o.Group = s
		case "single":
			o.Single = ParseBool(v)
		case "network_global":
			if ParseBool(v) {
				o.Scope = GlobalAcrossTenants
			}
		case "scope":
			// network_global wins when both are given
			if ParseBool(m["network_global"]) {
				continue
			}
			s, err := parseScope(v)
			if err != nil {
				return CallOptions{}, err
			}
			o.Scope = s
		default:
			return CallOptions{}, fmt.Errorf("memocache: unknown option %q", k)
		}
	}
	return o, nil
}

func parseScope(v any) (Scope, error) {
	switch s := v.(type) {
	case Scope:
		if s > GlobalAcrossTenants {
			return 0, fmt.Errorf("memocache: option scope: invalid value %d", s)
		}
		return s, nil
	case nil:
		return PerTenant, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "tenant", "site":
			return PerTenant, nil
		case "global", "network":
			return GlobalAcrossTenants, nil
		}
	}
	return 0, fmt.Errorf("memocache: option scope: invalid value %v", v)
}

// parseExpire reads seconds (number or numeric string) or a unit string such
// as "90m" or "1d". An explicit zero means no expiry.
func parseExpire(v any) (time.Duration, error) {
	var secs float64
	switch x := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		if x == 0 {
			return NoExpiry, nil
		}
		if x < 0 {
			return 0, fmt.Errorf("memocache: option expire: negative duration %s", x)
		}
		return x, nil
	case int:
		secs = float64(x)
	case int8:
		secs = float64(x)
	case int16:
		secs = float64(x)
	case int32:
		secs = float64(x)
	case int64:
		secs = float64(x)
	case uint:
		secs = float64(x)
	case uint8:
		secs = float64(x)
	case uint16:
		secs = float64(x)
	case uint32:
		secs = float64(x)
	case uint64:
		secs = float64(x)
	case float32:
		secs = float64(x)
	case float64:
		secs = x
	case string:
		s := strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			secs = f
			break
		}
		d, err := str2duration.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("memocache: option expire: %w", err)
		}
		if d == 0 {
			return NoExpiry, nil
		}
		if d < 0 {
			return 0, fmt.Errorf("memocache: option expire: negative duration %s", d)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("memocache: option expire: unsupported type %T", v)
	}

	switch {
	case math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0:
		return 0, fmt.Errorf("memocache: option expire: invalid seconds %v", v)
	case secs == 0:
		return NoExpiry, nil
	case secs > float64(math.MaxInt64/int64(time.Second)):
		return 0, fmt.Errorf("memocache: option expire: %v seconds overflows", v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
