package client

import (
	"math"
	"sort"
	"strings"
	"time"

	"taskhub/domain"
)

// Stats are the per-status counts of the held list.
type Stats struct {
	Total      int
	Todo       int
	InProgress int
	Completed  int
}

// Tasks returns a copy of the held list in server order.
func (c *Controller) Tasks() []domain.Task {
	out := make([]domain.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Stats counts the held tasks by status.
func (c *Controller) Stats() Stats {
	return countByStatus(c.tasks)
}

// ProgressPercent is the share of held tasks that are completed, as a
// whole percentage. An empty list is 0, not a division error.
func (c *Controller) ProgressPercent() int {
	if len(c.tasks) == 0 {
		return 0
	}
	return countByStatus(c.tasks).Completed * 100 / len(c.tasks)
}

// DueDatedCount is the number of held tasks that carry a due date.
func (c *Controller) DueDatedCount() int {
	n := 0
	for _, t := range c.tasks {
		if t.DueDate != nil {
			n++
		}
	}
	return n
}

func countByStatus(tasks []domain.Task) Stats {
	s := Stats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case domain.StatusTodo:
			s.Todo++
		case domain.StatusInProgress:
			s.InProgress++
		case domain.StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// SortKey selects a task ordering.
type SortKey string

const (
	SortDateDesc SortKey = "date-desc"
	SortDateAsc  SortKey = "date-asc"
	SortTitle    SortKey = "title"
	SortPriority SortKey = "priority"
	SortDueDate  SortKey = "due-date"
)

// SortTasks returns a sorted copy; the input is never reordered. Ties
// keep their relative order. An unknown key returns the copy unchanged.
func SortTasks(tasks []domain.Task, key SortKey) []domain.Task {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)

	switch key {
	case SortDateDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case SortDateAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortTitle:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	case SortPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		})
	case SortDueDate:
		// Tasks without a due date sink to the end.
		sort.SliceStable(out, func(i, j int) bool {
			switch {
			case out[i].DueDate == nil:
				return false
			case out[j].DueDate == nil:
				return true
			default:
				return out[i].DueDate.Before(*out[j].DueDate)
			}
		})
	}
	return out
}

// Sorted returns the held list under the given ordering.
func (c *Controller) Sorted(key SortKey) []domain.Task {
	return SortTasks(c.tasks, key)
}

// Search filters the held list by a case-insensitive substring match
// over title and description. A blank query returns everything.
func (c *Controller) Search(query string) []domain.Task {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.Tasks()
	}
	var out []domain.Task
	for _, t := range c.tasks {
		if strings.Contains(strings.ToLower(t.Title), query) ||
			strings.Contains(strings.ToLower(t.Description), query) {
			out = append(out, t)
		}
	}
	return out
}

// CalendarPage is the month and year currently displayed.
func (c *Controller) CalendarPage() (time.Month, int) {
	return c.month, c.year
}

// PrevMonth moves the calendar window back one month, rolling the year
// at January.
func (c *Controller) PrevMonth() {
	if c.month == time.January {
		c.month = time.December
		c.year--
		return
	}
	c.month--
}

// NextMonth moves the calendar window forward one month, rolling the
// year at December.
func (c *Controller) NextMonth() {
	if c.month == time.December {
		c.month = time.January
		c.year++
		return
	}
	c.month++
}

// GoToToday snaps the calendar window to the current month.
func (c *Controller) GoToToday() {
	today := c.now()
	c.month = today.Month()
	c.year = today.Year()
}

// CalendarDays groups the held tasks due in the displayed month by day
// of month. Tasks without a due date never appear.
func (c *Controller) CalendarDays() map[int][]domain.Task {
	days := make(map[int][]domain.Task)
	for _, t := range c.tasks {
		if t.DueDate == nil {
			continue
		}
		if t.DueDate.Month() != c.month || t.DueDate.Year() != c.year {
			continue
		}
		day := t.DueDate.Day()
		days[day] = append(days[day], t)
	}
	return days
}

// DayStats counts the displayed month's tasks due on the given day of
// month by status, for the per-day calendar markers.
func (c *Controller) DayStats(day int) Stats {
	var tasks []domain.Task
	for _, t := range c.tasks {
		if t.DueDate == nil {
			continue
		}
		if t.DueDate.Month() != c.month || t.DueDate.Year() != c.year || t.DueDate.Day() != day {
			continue
		}
		tasks = append(tasks, t)
	}
	return countByStatus(tasks)
}

// Urgency classifies how soon a due date needs attention.
type Urgency int

const (
	UrgencyNone Urgency = iota
	UrgencyOverdue
	UrgencyDueToday
	UrgencyDueTomorrow
	UrgencyUpcoming
)

func (u Urgency) String() string {
	switch u {
	case UrgencyOverdue:
		return "overdue"
	case UrgencyDueToday:
		return "due-today"
	case UrgencyDueTomorrow:
		return "due-tomorrow"
	case UrgencyUpcoming:
		return "upcoming"
	default:
		return "none"
	}
}

// DaysRemaining counts whole days from today to the due date, both
// truncated to midnight. Past dates are negative.
func DaysRemaining(due, today time.Time) int {
	d := startOfDay(due)
	t := startOfDay(today)
	return int(math.Round(d.Sub(t).Hours() / 24))
}

// ClassifyDue buckets a due date relative to today. A window of two to
// seven days out counts as upcoming; anything further is unclassified.
func ClassifyDue(due *time.Time, today time.Time) Urgency {
	if due == nil {
		return UrgencyNone
	}
	switch days := DaysRemaining(*due, today); {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyDueToday
	case days == 1:
		return UrgencyDueTomorrow
	case days <= 7:
		return UrgencyUpcoming
	default:
		return UrgencyNone
	}
}

// DueUrgency classifies a task's due date against the current time.
func (c *Controller) DueUrgency(t domain.Task) Urgency {
	return ClassifyDue(t.DueDate, c.now())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
