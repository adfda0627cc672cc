package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/warp/billing-ledger/ledger"
	"github.com/warp/billing-ledger/logger"
)

const settingsKey = "company_settings"

// SettingsCache is a read-through cache in front of a ledger.SettingsStore.
// Backend failures are logged and the call falls through to the store.
type SettingsCache struct {
	store   ledger.SettingsStore
	backend Backend
	ttl     time.Duration
	log     *zap.Logger
}

func NewSettingsCache(store ledger.SettingsStore, backend Backend, ttl time.Duration, log *zap.Logger) *SettingsCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsCache{store: store, backend: backend, ttl: ttl, log: log}
}

func (c *SettingsCache) GetSettings(ctx context.Context) (ledger.CompanySettings, error) {
	log := logger.Ctx(ctx, c.log)

	raw, ok, err := c.backend.Get(ctx, settingsKey)
	if err != nil {
		log.Warn("settings cache read failed", zap.Error(err))
	}
	if ok {
		var cs ledger.CompanySettings
		if err := json.Unmarshal(raw, &cs); err == nil {
			return cs, nil
		}
		log.Warn("discarding undecodable settings cache entry")
	}

	cs, err := c.store.GetSettings(ctx)
	if err != nil {
		return ledger.CompanySettings{}, err
	}
	if raw, err := json.Marshal(cs); err == nil {
		if err := c.backend.Set(ctx, settingsKey, raw, c.ttl); err != nil {
			log.Warn("settings cache write failed", zap.Error(err))
		}
	}
	return cs, nil
}

func (c *SettingsCache) SaveSettings(ctx context.Context, cs ledger.CompanySettings) error {
	if err := c.store.SaveSettings(ctx, cs); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops the cached entry.
func (c *SettingsCache) Invalidate(ctx context.Context) {
	if err := c.backend.Delete(ctx, settingsKey); err != nil {
		logger.Ctx(ctx, c.log).Warn("settings cache invalidation failed", zap.Error(err))
	}
}

var _ ledger.SettingsStore = (*SettingsCache)(nil)
