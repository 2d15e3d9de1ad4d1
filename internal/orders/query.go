package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
)

// DateRange bounds List by creation time.
type DateRange string

const (
	RangeAll   DateRange = "all"
	RangeToday DateRange = "today" // since 00:00 UTC
	RangeWeek  DateRange = "week"  // last 7 days
	RangeMonth DateRange = "month" // last calendar month
)

// StatusAll disables the status filter.
const StatusAll = "all"

const (
	DefaultLimit = 20
	MaxLimit     = 100

	attentionAge = 3 * 24 * time.Hour
)

// Filter selects orders for List. The zero value lists everything.
type Filter struct {
	UserID    string // customer scope
	Status    string // a Status, "all" or empty
	Search    string
	DateRange DateRange
	Queue     bool // priority desc, then newest first
}

// Page is a 1-based page request. Zero values take the defaults.
type Page struct {
	Page  int
	Limit int
}

// Result is one page of orders.
type Result struct {
	Items []Order `json:"items"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Pages int     `json:"pages"`
}

// Stats summarises the order book for the admin dashboard.
type Stats struct {
	Total     int            `json:"total"`
	ByStatus  map[Status]int `json:"byStatus"`
	Revenue   float64        `json:"revenue"` // excludes cancelled and refunded orders
	Today     int            `json:"today"`
	Attention int            `json:"attention"`
}

// List returns one page of the orders matching f.
func (s *Service) List(ctx context.Context, f Filter, p Page) (Result, error) {
	p, err := p.normalize()
	if err != nil {
		return Result{}, err
	}
	status, err := parseStatusFilter(f.Status)
	if err != nil {
		return Result{}, err
	}
	now := s.now().UTC()
	since, err := f.DateRange.since(now)
	if err != nil {
		return Result{}, err
	}

	all, err := s.load(ctx, ListQuery{UserID: f.UserID, Status: status, Since: since})
	if err != nil {
		return Result{}, err
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := make([]Order, 0, len(all))
	for _, o := range all {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		if !since.IsZero() && o.CreatedAt.Before(since) {
			continue
		}
		if search != "" && !matchesSearch(&o, search) {
			continue
		}
		matched = append(matched, o)
	}

	if f.Queue {
		sortQueue(matched)
	} else {
		sortNewest(matched)
	}
	return paginate(matched, p), nil
}

// Attention is the admin queue of orders needing action: pending for more
// than three days, urgent, or with a failed payment. It is sorted by
// priority, then newest first.
func (s *Service) Attention(ctx context.Context, p Page) (Result, error) {
	p, err := p.normalize()
	if err != nil {
		return Result{}, err
	}
	all, err := s.load(ctx, ListQuery{})
	if err != nil {
		return Result{}, err
	}
	now := s.now().UTC()
	matched := make([]Order, 0)
	for _, o := range all {
		if NeedsAttention(&o, now) {
			matched = append(matched, o)
		}
	}
	sortQueue(matched)
	return paginate(matched, p), nil
}

// Stats counts orders per status and sums revenue.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.load(ctx, ListQuery{})
	if err != nil {
		return Stats{}, err
	}
	now := s.now().UTC()
	today := startOfDay(now)

	st := Stats{Total: len(all), ByStatus: make(map[Status]int, len(AllStatuses))}
	for _, status := range AllStatuses {
		st.ByStatus[status] = 0
	}
	revenue := decimal.Zero
	for _, o := range all {
		st.ByStatus[o.Status]++
		if o.Status != StatusCancelled && o.Status != StatusRefunded {
			revenue = revenue.Add(decimal.NewFromFloat(o.Total))
		}
		if !o.CreatedAt.Before(today) {
			st.Today++
		}
		if NeedsAttention(&o, now) {
			st.Attention++
		}
	}
	st.Revenue = revenue.Round(2).InexactFloat64()
	return st, nil
}

func (s *Service) load(ctx context.Context, q ListQuery) ([]Order, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.List(sctx, q)
}

// NeedsAttention reports whether o belongs in the admin attention queue.
func NeedsAttention(o *Order, now time.Time) bool {
	switch {
	case o.Status == StatusPending && now.Sub(o.CreatedAt) > attentionAge:
		return true
	case o.Priority == PriorityUrgent:
		return true
	case o.PaymentStatus == PaymentFailed:
		return true
	}
	return false
}

func (p Page) normalize() (Page, error) {
	if p.Page < 0 || p.Limit < 0 {
		return Page{}, fmt.Errorf("%w: page and limit must not be negative", apperr.ErrValidation)
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	p.Limit = min(p.Limit, MaxLimit)
	return p, nil
}

func parseStatusFilter(v string) (Status, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == StatusAll {
		return "", nil
	}
	st := Status(v)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, v)
	}
	return st, nil
}

// since returns the lower creation bound for r; zero means unbounded.
func (r DateRange) since(now time.Time) (time.Time, error) {
	switch r {
	case "", RangeAll:
		return time.Time{}, nil
	case RangeToday:
		return startOfDay(now), nil
	case RangeWeek:
		return now.Add(-7 * 24 * time.Hour), nil
	case RangeMonth:
		return now.AddDate(0, -1, 0), nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown date range %q", apperr.ErrValidation, r)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// matchesSearch does a case-insensitive substring match; q is lower case.
func matchesSearch(o *Order, q string) bool {
	for _, field := range []string{
		o.CustomerName,
		o.CustomerEmail,
		o.ShippingAddress.Name,
		o.ShippingAddress.Phone,
		o.OrderID,
		o.OrderNumber,
	} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func sortNewest(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func sortQueue(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := list[i].Priority.rank(), list[j].Priority.rank()
		if ri != rj {
			return ri > rj
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func paginate(list []Order, p Page) Result {
	total := len(list)
	res := Result{
		Items: []Order{},
		Total: total,
		Page:  p.Page,
		Pages: (total + p.Limit - 1) / p.Limit,
	}
	// Past the last page; also keeps (Page-1)*Limit from overflowing.
	if p.Page > res.Pages {
		return res
	}
	start := (p.Page - 1) * p.Limit
	end := min(start+p.Limit, total)
	res.Items = list[start:end]
	return res
}
