package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/backoffice/internal/cache"
	"github.com/geocoder89/backoffice/internal/domain/activity"
	"github.com/geocoder89/backoffice/internal/domain/setting"
	"github.com/geocoder89/backoffice/internal/utils"
	"github.com/gin-gonic/gin"
)

type SettingsStore interface {
	GetAll(ctx context.Context) (map[string]string, error)
	PutAll(ctx context.Context, values map[string]string) error
}

// SettingsReader serves the current settings to handlers that apply them as
// defaults or constraints.
type SettingsReader interface {
	Current(ctx context.Context) (setting.Settings, error)
}

func currentSettings(ctx context.Context, r SettingsReader) (setting.Settings, error) {
	if r == nil {
		return setting.Defaults(), nil
	}
	return r.Current(ctx)
}

type SettingsHandler struct {
	store SettingsStore
	cache *cache.Cache[setting.Settings]
	audit ActivityRecorder
}

func NewSettingsHandler(store SettingsStore, c *cache.Cache[setting.Settings], audit ActivityRecorder) *SettingsHandler {
	if c == nil {
		c = cache.New[setting.Settings](30 * time.Second)
	}
	return &SettingsHandler{store: store, cache: c, audit: audit}
}

// GET /settings
func (h *SettingsHandler) Get(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	s, err := h.Current(cctx)
	if err != nil {
		RespondInternal(ctx, "Could not load settings")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, s)
}

// Current returns the stored settings over the defaults, through the cache.
func (h *SettingsHandler) Current(ctx context.Context) (setting.Settings, error) {
	return h.cache.GetOrLoad(utils.SettingsCacheKey, func() (setting.Settings, error) {
		m, err := h.store.GetAll(ctx)
		if err != nil {
			return setting.Settings{}, err
		}
		return setting.FromMap(m), nil
	})
}

// PUT /settings
func (h *SettingsHandler) Update(ctx *gin.Context) {
	var req setting.UpdateSettingsRequest
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	s := req.Settings()
	if err := h.store.PutAll(cctx, s.ToMap()); err != nil {
		RespondInternal(ctx, "Could not save settings")
		return
	}
	h.cache.Delete(utils.SettingsCacheKey)

	h.audit.Record(cctx, activity.ActionUpdate, activity.EntitySettings, "", s)
	ctx.JSON(http.StatusOK, s)
}
