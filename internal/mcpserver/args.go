package mcpserver

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"remindd/internal/reminder"
)

func hasAny(req mcp.CallToolRequest, keys ...string) bool {
	args := req.GetArguments()
	for _, k := range keys {
		if _, ok := args[k]; ok {
			return true
		}
	}
	return false
}

// buildTrigger overlays timezone and repeat arguments on base.
func buildTrigger(req mcp.CallToolRequest, base reminder.TimeTrigger) (reminder.TimeTrigger, error) {
	if v := strings.TrimSpace(req.GetString("timezone", "")); v != "" {
		base.Timezone = v
	}
	every := int(req.GetFloat("every", 0))
	if every < 0 {
		return base, fmt.Errorf("every must be positive")
	}
	kind := strings.ToLower(strings.TrimSpace(req.GetString("repeat", "")))
	if kind == "" && every > 0 && base.Repeat != nil {
		// keep the rule, change only its multiplier
		kind = repeatKind(base.Repeat)
	}
	switch kind {
	case "":
	case "none":
		base.Repeat = nil
	case "interval":
		if every <= 0 {
			return base, fmt.Errorf("interval repeat needs every (minutes)")
		}
		base.Repeat = reminder.IntervalRepeat{Minutes: every}
	case "daily":
		base.Repeat = reminder.DailyRepeat{Interval: reminder.Every(every)}
	case "weekly":
		base.Repeat = reminder.WeeklyRepeat{Interval: reminder.Every(every)}
	case "monthly":
		base.Repeat = reminder.MonthlyRepeat{Interval: reminder.Every(every)}
	default:
		return base, fmt.Errorf("unknown repeat %q", kind)
	}
	return base, nil
}

func repeatKind(r reminder.Repeat) string {
	switch r.(type) {
	case reminder.IntervalRepeat:
		return "interval"
	case reminder.DailyRepeat:
		return "daily"
	case reminder.WeeklyRepeat:
		return "weekly"
	case reminder.MonthlyRepeat:
		return "monthly"
	}
	return ""
}

// quietHours returns the window from quiet_start/quiet_end. set is false
// when neither was given.
func quietHours(req mcp.CallToolRequest) (qh *reminder.QuietHours, set bool, err error) {
	start := strings.TrimSpace(req.GetString("quiet_start", ""))
	end := strings.TrimSpace(req.GetString("quiet_end", ""))
	if start == "" && end == "" {
		return nil, false, nil
	}
	if start == "" || end == "" {
		return nil, false, fmt.Errorf("quiet_start and quiet_end go together")
	}
	return &reminder.QuietHours{Enabled: true, StartLocal: start, EndLocal: end}, true, nil
}

func target(req mcp.CallToolRequest) reminder.Target {
	if p := strings.TrimSpace(req.GetString("target_path", "")); p != "" {
		return reminder.Target{Type: reminder.TargetPath, Path: p}
	}
	if q := strings.TrimSpace(req.GetString("target_query", "")); q != "" {
		return reminder.Target{Type: reminder.TargetQuery, Query: q}
	}
	return reminder.Target{Type: reminder.TargetNote}
}
