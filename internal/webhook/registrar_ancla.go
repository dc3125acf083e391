package webhook

import (
	"context"
	"net/http"
	"time"

	"github.com/xmidt-org/ancla"
	"github.com/xmidt-org/argus/chrysom"
	"go.uber.org/zap"
)

// toAncla maps our Config into ancla client pieces.
func (c Config) toAncla() (ancla.Config, time.Duration) {
	duration := c.Duration
	if duration <= 0 {
		duration = time.Duration(0xffff) * time.Hour
	}
	ac := ancla.Config{
		JWTParserType:     "simple",
		DisablePartnerIDs: true,
		BasicClientConfig: chrysom.BasicClientConfig{
			Address:    c.ArgusURL,
			Bucket:     c.Bucket,
			Auth:       chrysom.Auth{Basic: c.AuthBasic},
			HTTPClient: &http.Client{Timeout: 30 * time.Second},
		},
	}
	return ac, duration
}

// RegisterAncla performs registration using ancla instead of raw Argus PUT.
func (c Config) RegisterAncla(ctx context.Context, log *zap.Logger) error {
	if !c.Enable {
		log.Info("webhook(ancla): disabled")
		return nil
	}
	c = c.withDefaults()
	acfg, duration := c.toAncla()
	log = log.With(zap.String("callback", c.CallbackURL))

	return retry(ctx, log, c.Retries, c.RetryDelay, func() error {
		svc, err := ancla.NewService(acfg, nil)
		if err != nil {
			return err
		}
		until := time.Now().Add(duration)
		hook := ancla.InternalWebhook{Webhook: ancla.Webhook{
			Config:   ancla.DeliveryConfig{URL: c.CallbackURL, ContentType: "application/json"},
			Events:   c.Events,
			Matcher:  ancla.MetadataMatcherConfig{DeviceID: c.DeviceMatchers},
			Duration: duration,
			Until:    until,
		}}
		if err := svc.Add(ctx, "", hook); err != nil {
			return err
		}
		log.Info("webhook(ancla): registered", zap.Time("until", until))
		return nil
	})
}

// RegisterWithFallback registers through ancla and falls back to a raw Argus PUT when
// the ancla client cannot be used.
func (c Config) RegisterWithFallback(ctx context.Context, log *zap.Logger, useAncla bool) error {
	if useAncla {
		err := c.RegisterAncla(ctx, log)
		if err == nil || ctx.Err() != nil {
			return err
		}
		log.Warn("webhook(ancla): falling back to raw registration", zap.Error(err))
	}
	return c.Register(ctx, log)
}
