// Package reminder implements the reminder-setting tool (spec §4.2). It
// never schedules anything itself: a successful call returns a
// models.ReminderDetails side effect that the Orchestrator hands to the
// Event Scheduler (internal/scheduler).
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/discord-agent/orchestrator/pkg/models"
)

const schemaJSON = `{
	"type": "object",
	"properties": {
		"message": {
			"type": "string",
			"description": "The reminder message to send when triggered"
		},
		"when": {
			"type": "string",
			"description": "When to send the reminder: 'in X minutes', 'in X hours', 'in X days', or an ISO8601 timestamp"
		}
	},
	"required": ["message", "when"]
}`

var compiledSchema = mustCompile(schemaJSON)

func mustCompile(raw string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("reminder.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	s, err := c.Compile("reminder.json")
	if err != nil {
		panic(err)
	}
	return s
}

// Context identifies where a fired reminder should be delivered; supplied by
// the caller (Session Glue) per-call since the tool itself is stateless.
type Context struct {
	ChannelRef string
	UserRef    string
}

type contextKey struct{}

// WithContext attaches a delivery Context to ctx for Execute to read.
func WithContext(ctx context.Context, rc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

func fromContext(ctx context.Context) Context {
	if rc, ok := ctx.Value(contextKey{}).(Context); ok {
		return rc
	}
	return Context{}
}

// Tool is the reminder-setting tool.
type Tool struct {
	now func() time.Time
}

// New returns a reminder tool using the real clock.
func New() *Tool {
	return &Tool{now: time.Now}
}

func (t *Tool) Name() string        { return "reminder_set" }
func (t *Tool) Priority() int       { return 50 }
func (t *Tool) Description() string {
	return "Set a reminder to deliver a message at a later time. Accepts relative times " +
		"('in 5 minutes', 'in 2 hours', 'in 1 day') or absolute ISO8601 timestamps."
}
func (t *Tool) Schema() *jsonschema.Schema { return compiledSchema }
func (t *Tool) SchemaJSON() []byte         { return []byte(schemaJSON) }

type input struct {
	Message string `json:"message"`
	When    string `json:"when"`
}

// Execute parses the "when" field and returns a ReminderDetails side effect
// on success. It never persists or schedules anything.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage) models.ToolExecutionResult {
	result := models.ToolExecutionResult{ToolName: t.Name()}

	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "invalid arguments: " + err.Error()
		return result
	}
	if in.Message == "" || in.When == "" {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "both message and when are required"
		return result
	}

	now := t.now
	if now == nil {
		now = time.Now
	}

	fireAt, err := parseWhen(in.When, now())
	if err != nil {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "invalid time: " + err.Error()
		return result
	}
	if fireAt.Before(now()) {
		result.ErrorKind = models.ErrorKindInvalidStructuredOutput
		result.Content = "cannot set a reminder in the past"
		return result
	}

	rc := fromContext(ctx)
	result.Success = true
	result.Content = fmt.Sprintf("reminder set for %s", fireAt.Format(time.RFC3339))
	result.SideEffect = &models.ReminderDetails{
		ID:         uuid.NewString(),
		Content:    in.Message,
		FireAt:     fireAt,
		ChannelRef: rc.ChannelRef,
		UserRef:    rc.UserRef,
		CreatedAt:  now(),
	}
	return result
}

// parseWhen parses a relative ("in N units") or absolute time specification
// against the given reference instant.
func parseWhen(when string, ref time.Time) (time.Time, error) {
	when = strings.TrimSpace(when)

	if lower := strings.ToLower(when); strings.HasPrefix(lower, "in ") {
		return parseRelativeTime(strings.TrimPrefix(lower, "in "), ref)
	}

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"Jan 2 15:04",
		"Jan 2 3:04 PM",
		"3:04 PM",
		"15:04",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, when); err == nil {
			if t.Year() == 0 {
				t = time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), t.Second(), 0, ref.Location())
				if t.Before(ref) {
					t = t.Add(24 * time.Hour)
				}
			}
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not parse time: %s", when)
}

var relativeTimePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(seconds?|minutes?|mins?|hours?|hrs?|days?|weeks?)$`)

func parseRelativeTime(s string, ref time.Time) (time.Time, error) {
	matches := relativeTimePattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return time.Time{}, fmt.Errorf("invalid relative time: %s", s)
	}

	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid number: %s", matches[1])
	}

	var d time.Duration
	switch unit := matches[2]; {
	case strings.HasPrefix(unit, "second"):
		d = time.Duration(amount * float64(time.Second))
	case strings.HasPrefix(unit, "min"):
		d = time.Duration(amount * float64(time.Minute))
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		d = time.Duration(amount * float64(time.Hour))
	case strings.HasPrefix(unit, "day"):
		d = time.Duration(amount * float64(24*time.Hour))
	case strings.HasPrefix(unit, "week"):
		d = time.Duration(amount * float64(7*24*time.Hour))
	default:
		return time.Time{}, fmt.Errorf("unknown unit: %s", unit)
	}

	return ref.Add(d), nil
}
