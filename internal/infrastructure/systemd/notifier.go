package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"

	"github.com/ueckoken/kagi/internal/core/ports"
)

// Notifier reports daemon readiness and liveness to systemd. Outside a unit
// with NotifyAccess every call is a no-op.
type Notifier struct {
	logger *logrus.Logger
	notify func(state string) (bool, error)
	// watchdogInterval returns 0 when the unit has no WatchdogSec.
	watchdogInterval func() (time.Duration, error)
}

func NewNotifier(logger *logrus.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdogInterval: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// RunWatchdog pings WATCHDOG=1 at half the configured interval while live reports
// alive. It returns immediately when the watchdog is not enabled.
func (n *Notifier) RunWatchdog(ctx context.Context, live ports.Liveness) {
	interval, err := n.watchdogInterval()
	if err != nil {
		if n.logger != nil {
			n.logger.WithError(err).Warn("cannot read systemd watchdog settings")
		}
		return
	}
	if interval <= 0 {
		return
	}
	n.watchdogLoop(ctx, interval/2, live)
}

func (n *Notifier) watchdogLoop(ctx context.Context, every time.Duration, live ports.Liveness) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !live.Alive() {
				if n.logger != nil {
					n.logger.Error("door loop stalled; withholding watchdog ping")
				}
				continue
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

func (n *Notifier) send(state string) {
	if _, err := n.notify(state); err != nil && n.logger != nil {
		n.logger.WithFields(logrus.Fields{"state": state}).WithError(err).Warn("sd_notify failed")
	}
}
