package accounts

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Refresher proactively refreshes Google tokens nearing expiry so user
// turns rarely pay the refresh round-trip inline.
type Refresher struct {
	store  *Store
	oauth  *GoogleOAuth
	cache  *TokenCache
	logger *zap.Logger
	window time.Duration
	cron   *cron.Cron
}

func NewRefresher(store *Store, oauth *GoogleOAuth, cache *TokenCache, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		store:  store,
		oauth:  oauth,
		cache:  cache,
		logger: logger,
		window: 15 * time.Minute,
	}
}

// Start schedules the refresh sweep. schedule is a cron spec, e.g.
// "@every 10m".
func (r *Refresher) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.sweep); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

func (r *Refresher) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

func (r *Refresher) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	accounts, err := r.store.ListExpiring("google", r.window)
	if err != nil {
		r.logger.Warn("token refresh sweep failed", zap.Error(err))
		return
	}
	for _, account := range accounts {
		exchange, err := r.oauth.Refresh(ctx, account.RefreshToken)
		if err != nil {
			r.logger.Warn("proactive token refresh failed",
				zap.String("user_id", account.UserID),
				zap.Error(err))
			r.cache.Drop(ctx, account.UserID, account.Provider)
			continue
		}
		if err := r.store.UpdateTokens(account.ID, exchange.AccessToken, exchange.RefreshToken, exchange.ExpiresAt()); err != nil {
			r.logger.Warn("persisting refreshed token failed",
				zap.String("user_id", account.UserID),
				zap.Error(err))
			continue
		}
		r.cache.Put(ctx, account.UserID, account.Provider, exchange.AccessToken, exchange.ExpiresAt())
		r.logger.Info("token refreshed",
			zap.String("user_id", account.UserID),
			zap.String("provider", account.Provider))
	}
}
