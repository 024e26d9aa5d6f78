package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/cache"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type DashboardStore interface {
	RevenueSince(ctx context.Context, since time.Time) (int64, error)
	OrderCountsByStatus(ctx context.Context) (map[string]int, error)
	LowStockCount(ctx context.Context) (int, error)
	UpcomingBookings(ctx context.Context, from, to time.Time) (int, error)
	ActiveProducts(ctx context.Context) (int, error)
	ActiveServices(ctx context.Context) (int, error)
}

type Dashboard struct {
	RevenueTodayCents     int64          `json:"revenueTodayCents"`
	RevenueMonthCents     int64          `json:"revenueMonthCents"`
	OrdersByStatus        map[string]int `json:"ordersByStatus"`
	LowStockProducts      int            `json:"lowStockProducts"`
	UpcomingBookings7Days int            `json:"upcomingBookings7Days"`
	ActiveProducts        int            `json:"activeProducts"`
	ActiveServices        int            `json:"activeServices"`
	GeneratedAt           time.Time      `json:"generatedAt"`
}

type DashboardHandler struct {
	store DashboardStore
	cache *cache.Cache[Dashboard]
	now   func() time.Time
}

func NewDashboardHandler(store DashboardStore) *DashboardHandler {
	return &DashboardHandler{
		store: store,
		cache: cache.New[Dashboard](15 * time.Second),
		now:   time.Now,
	}
}

// GET /dashboard
func (h *DashboardHandler) Get(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 4*time.Second)
	defer cancel()

	now := h.now().UTC()
	d, err := h.cache.GetOrLoad(utils.DashboardCacheKey(now), func() (Dashboard, error) {
		return h.load(cctx, now)
	})
	if err != nil {
		RespondInternal(ctx, "Could not load dashboard")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, d)
}

func (h *DashboardHandler) load(ctx context.Context, now time.Time) (Dashboard, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	d := Dashboard{GeneratedAt: now}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		d.RevenueTodayCents, err = h.store.RevenueSince(gctx, dayStart)
		return err
	})
	g.Go(func() (err error) {
		d.RevenueMonthCents, err = h.store.RevenueSince(gctx, monthStart)
		return err
	})
	g.Go(func() (err error) {
		d.OrdersByStatus, err = h.store.OrderCountsByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.LowStockProducts, err = h.store.LowStockCount(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.UpcomingBookings7Days, err = h.store.UpcomingBookings(gctx, now, now.Add(7*24*time.Hour))
		return err
	})
	g.Go(func() (err error) {
		d.ActiveProducts, err = h.store.ActiveProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		d.ActiveServices, err = h.store.ActiveServices(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	if d.OrdersByStatus == nil {
		d.OrdersByStatus = map[string]int{}
	}
	return d, nil
}
