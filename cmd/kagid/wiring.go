package main

import (
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	config "github.com/ueckoken/kagi/configs"
	"github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/ports"
	"github.com/ueckoken/kagi/internal/infrastructure/db"
	"github.com/ueckoken/kagi/internal/infrastructure/gpio"
	"github.com/ueckoken/kagi/internal/infrastructure/lock"
	"github.com/ueckoken/kagi/internal/infrastructure/memcache"
	infraRedis "github.com/ueckoken/kagi/internal/infrastructure/redis"
	"github.com/ueckoken/kagi/internal/infrastructure/repositories"
	"github.com/ueckoken/kagi/internal/infrastructure/simulator"
	"github.com/ueckoken/kagi/internal/utils"
)

// newCache returns the verdict cache. An unreachable redis is not fatal: the
// client reconnects on its own and every lookup falls back to the authority
// until it does.
func newCache(cfg *config.Config, logger *logrus.Logger) (ports.Cache, *redis.Client, func(), error) {
	switch cfg.Cache.Backend {
	case "memory":
		c, err := memcache.New(cfg.Cache.MemoryCapacity, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.WithField("capacity", cfg.Cache.MemoryCapacity).Info("Using in-process verdict cache")
		return c, nil, c.Close, nil
	default:
		client, err := infraRedis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable at startup; verifying against the authority until it returns")
		} else {
			logger.Info("Connected to Redis successfully")
		}
		return infraRedis.NewRedisCache(client, cfg.Cache.KeyPrefix), client, func() { _ = client.Close() }, nil
	}
}

// newAuditRepository opens and migrates the audit database. Both results are
// nil when AUDIT_DRIVER=none.
func newAuditRepository(cfg *config.Config, logger *logrus.Logger) (ports.AccessEventRepository, *db.Database, error) {
	if cfg.Audit.Driver == "none" {
		logger.Info("Audit log disabled")
		return nil, nil, nil
	}
	database, err := db.NewDatabase(&cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	logger.WithField("driver", cfg.Audit.Driver).Info("Audit database ready")
	return repositories.NewAccessEventRepository(database, logger), database, nil
}

func newCardHashFunc(cfg *config.Config) (func(card.IDm) string, error) {
	hasher, err := utils.NewCardHasher(cfg.Audit.HashKey)
	if err != nil {
		return nil, err
	}
	return hasher.Hash, nil
}

func newHardware(cfg *config.HardwareConfig, logger *logrus.Logger) (ports.Actuator, ports.Indicator, error) {
	if cfg.Driver == "simulator" {
		logger.Warn("Using simulated hardware; the door will not move")
		return simulator.NewActuator(logger), simulator.NewIndicator(logger), nil
	}

	pwm, err := gpio.OpenPWM(cfg.PWMRoot, cfg.PWMChip, cfg.PWMChannel)
	if err != nil {
		return nil, nil, err
	}
	grant, err := gpio.OpenOutput(cfg.GPIORoot, cfg.GrantPin)
	if err != nil {
		return nil, nil, err
	}
	deny, err := gpio.OpenOutput(cfg.GPIORoot, cfg.DenyPin)
	if err != nil {
		return nil, nil, err
	}
	servo := lock.NewServo(pwm, cfg.ServoStep, services.SleepContext, logger)
	leds := lock.NewLEDIndicator(grant, deny, cfg.Pulse, services.SleepContext)
	return servo, leds, nil
}
