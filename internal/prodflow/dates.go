package prodflow

import (
	"fmt"
	"time"
)

const (
	DateChoiceToday            = "today"
	DateChoiceTomorrow         = "tomorrow"
	DateChoiceDayAfterTomorrow = "dayAfterTomorrow"
	DateChoiceNextWeek         = "nextWeek"
	DateChoiceSkip             = "skip"
)

const dateLayout = "2006-01-02"

// ResolveDateChoice maps a date-select value to a calendar date relative to
// now. The second result is false for the skip choice, which is a terminal
// no-op outcome rather than an error.
func ResolveDateChoice(choice string, now time.Time) (string, bool, error) {
	switch choice {
	case DateChoiceToday:
		return now.AddDate(0, 0, 0).Format(dateLayout), true, nil
	case DateChoiceTomorrow:
		return now.AddDate(0, 0, 1).Format(dateLayout), true, nil
	case DateChoiceDayAfterTomorrow:
		return now.AddDate(0, 0, 2).Format(dateLayout), true, nil
	case DateChoiceNextWeek:
		return now.AddDate(0, 0, 7).Format(dateLayout), true, nil
	case DateChoiceSkip:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: unknown date choice %q", ErrInvalidInput, choice)
	}
}

func dateChoiceOptions() []SelectOption {
	return []SelectOption{
		{Label: "Today", Value: DateChoiceToday},
		{Label: "Tomorrow", Value: DateChoiceTomorrow},
		{Label: "Day after tomorrow", Value: DateChoiceDayAfterTomorrow},
		{Label: "Next week", Value: DateChoiceNextWeek},
		{Label: "Skip for now", Value: DateChoiceSkip},
	}
}
