// Package notification delivers sold-out and low-stock alerts through
// shoutrrr service URLs.
package notification

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/gifttrack/gifttrack-go/internal/conf"
	"github.com/gifttrack/gifttrack-go/internal/datastore"
	"github.com/gifttrack/gifttrack-go/internal/logging"
)

const sendTimeout = 10 * time.Second

var logger *slog.Logger

func init() {
	logger = logging.ForService("notification")
	if logger == nil {
		logger = slog.Default().With("service", "notification")
	}
}

// Service sends stock alerts. One alert per gift and alert kind; the guard
// resets when the gift restocks above the threshold.
type Service struct {
	enabled bool
	urls    []string
	sender  *router.ServiceRouter

	mu           sync.Mutex
	lowStockSent map[string]bool
	soldOutSent  map[string]bool
}

// NewService builds an alert service from the notification settings.
// Disabled settings produce a valid no-op service.
func NewService(settings *conf.NotificationSettings) (*Service, error) {
	s := &Service{
		enabled:      settings.Enabled,
		urls:         slices.Clone(settings.URLs),
		lowStockSent: make(map[string]bool),
		soldOutSent:  make(map[string]bool),
	}

	if !s.enabled {
		return s, nil
	}
	if len(s.urls) == 0 {
		return nil, fmt.Errorf("notification enabled but no service URLs configured")
	}

	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		return nil, fmt.Errorf("invalid notification URL: %w", err)
	}
	sender.Timeout = sendTimeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	s.sender = sender

	return s, nil
}

// NotifySoldOut sends a one-time alert when a gift sells out.
func (s *Service) NotifySoldOut(gift *datastore.Gift) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	if s.soldOutSent[gift.ID] {
		s.mu.Unlock()
		return
	}
	s.soldOutSent[gift.ID] = true
	delete(s.lowStockSent, gift.ID)
	s.mu.Unlock()

	title := fmt.Sprintf("Gift sold out: %s", gift.Name)
	body := fmt.Sprintf("%s is sold out. All %d units are gone.", gift.Name, gift.Total)
	s.send(gift.ID, title, body)
}

// NotifyLowStock sends a one-time alert when remaining stock drops to or
// below the configured percentage.
func (s *Service) NotifyLowStock(gift *datastore.Gift, percentLeft float64) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	if s.lowStockSent[gift.ID] {
		s.mu.Unlock()
		return
	}
	s.lowStockSent[gift.ID] = true
	s.mu.Unlock()

	title := fmt.Sprintf("Low stock: %s", gift.Name)
	body := fmt.Sprintf("%s is down to %d of %d units (%.1f%% left).",
		gift.Name, gift.Remaining, gift.Total, percentLeft)
	s.send(gift.ID, title, body)
}

// ResetGift clears the per-gift alert guards, for when a gift restocks.
func (s *Service) ResetGift(giftID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lowStockSent, giftID)
	delete(s.soldOutSent, giftID)
}

func (s *Service) send(giftID, title, body string) {
	if s.sender == nil {
		return
	}

	params := stypes.Params{}
	params.SetTitle(title)

	errs := s.sender.Send(body, &params)
	for _, err := range errs {
		if err != nil {
			logger.Warn("Failed to deliver alert",
				"gift_id", giftID,
				"error", sanitize(err))
			return
		}
	}
	logger.Info("Alert delivered", "gift_id", giftID, "title", title)
}

// sanitize strips anything past the scheme from URLs embedded in delivery
// errors; shoutrrr URLs carry tokens.
func sanitize(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, "://"); idx > 0 {
		start := idx
		for start > 0 && msg[start-1] != ' ' && msg[start-1] != '"' {
			start--
		}
		return msg[:start] + "<redacted>"
	}
	return msg
}
