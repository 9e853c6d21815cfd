package backup

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronExpression renders the settings schedule as a five-field cron expression.
// HOURLY runs at the minute of TimeOfDay, DAILY at TimeOfDay and WEEKLY at
// TimeOfDay on DayOfWeek (0 = Sunday).
func CronExpression(settings *BackupSettings) (string, error) {
	hour, minute, err := parseTimeOfDay(settings.TimeOfDay)
	if err != nil {
		return "", err
	}

	switch settings.Frequency {
	case FrequencyHourly:
		return fmt.Sprintf("%d * * * *", minute), nil
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case FrequencyWeekly:
		if settings.DayOfWeek < 0 || settings.DayOfWeek > 6 {
			return "", NewValidationError(fmt.Sprintf("invalid day of week %d", settings.DayOfWeek), nil)
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, settings.DayOfWeek), nil
	}
	return "", NewValidationError(fmt.Sprintf("invalid backup frequency %q", settings.Frequency), nil)
}

// NextRun returns the first scheduled time strictly after from, evaluated in loc
func NextRun(settings *BackupSettings, from time.Time, loc *time.Location) (time.Time, error) {
	expr, err := CronExpression(settings)
	if err != nil {
		return time.Time{}, err
	}
	schedule, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, NewValidationError(fmt.Sprintf("invalid schedule %q", expr), err)
	}
	if loc == nil {
		loc = time.Local
	}
	return schedule.Next(from.In(loc)), nil
}
