package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	scrimserrors "github.com/scrimx/scrims/services/scrims-service/internal/errors"
)

var (
	clockPattern    = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):([0-5][0-9])$`)
	durationPattern = regexp.MustCompile(`^(\d+)([mhd])$`)
	mentionPattern  = regexp.MustCompile(`<@!?(\d+)>`)
)

// Clock is a time of day in the tenant's timezone.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Add shifts the clock by d, wrapping around midnight.
func (c Clock) Add(d time.Duration) Clock {
	m := (c.Minutes() + int(d/time.Minute)) % (24 * 60)
	if m < 0 {
		m += 24 * 60
	}
	return Clock{Hour: m / 60, Minute: m % 60}
}

// Next returns the first instant at or after from that shows this clock time in loc.
func (c Clock) Next(from time.Time, loc *time.Location) time.Time {
	local := from.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, loc)
	if next.Before(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, c.Hour, c.Minute, 0, 0, loc)
	}
	return next
}

func ParseClock(value string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return Clock{}, scrimserrors.InvalidTimeError(value)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return Clock{Hour: hour, Minute: minute}, nil
}

// ParseTTL accepts durations such as 30m, 2h or 1d.
func ParseTTL(value string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(value)))
	if m == nil {
		return 0, scrimserrors.InvalidDurationError(value)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, scrimserrors.InvalidDurationError(value)
	}

	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

type ParsedRegistration struct {
	TeamName string
	Players  []string
}

// ParseRegistration reads the "Team Name: X" / "Player n: <@id>" format. Players are deduplicated
// in the order they appear.
func ParseRegistration(content string, requiredTags int) (*ParsedRegistration, error) {
	var teamName string
	var players []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)

		if strings.Contains(lower, "team name:") || strings.Contains(lower, "team:") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				teamName = strings.TrimSpace(line[idx+1:])
			}
			continue
		}

		if !strings.Contains(line, "@") {
			continue
		}
		if !strings.Contains(lower, "player") && !strings.Contains(lower, "member") && !strings.Contains(lower, "ign") {
			continue
		}

		m := mentionPattern.FindStringSubmatch(line)
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		players = append(players, m[1])
	}

	if len([]rune(teamName)) < 2 {
		return nil, scrimserrors.MalformedRegistrationError("team name is required and must be at least 2 characters")
	}
	if len(players) < requiredTags {
		return nil, scrimserrors.MalformedRegistrationError(
			fmt.Sprintf("at least %d players are required, found %d", requiredTags, len(players)))
	}

	return &ParsedRegistration{TeamName: teamName, Players: players}, nil
}
