package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/rollcall/internal/domain"
)

// DefaultNotifyWorkers bounds concurrent sends per tenant.
const DefaultNotifyWorkers = 4

// Dispatcher sends one summary message about newly critical subjects to every
// eligible administrator of a tenant.
type Dispatcher struct {
	recipients domain.RecipientReader
	messenger  domain.Messenger
	workers    int
}

// NewDispatcher creates a dispatcher sending through messenger with at most
// workers concurrent deliveries.
func NewDispatcher(recipients domain.RecipientReader, messenger domain.Messenger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultNotifyWorkers
	}
	return &Dispatcher{
		recipients: recipients,
		messenger:  messenger,
		workers:    workers,
	}
}

// Dispatch delivers the summary and returns the number of successful
// deliveries. Delivery failures are logged per recipient and never returned;
// the error reports only a failure to load recipients.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant domain.Tenant, subjects []domain.Subject) (int, error) {
	if len(subjects) == 0 {
		return 0, nil
	}

	configs, err := d.recipients.ListRecipients(ctx, tenant.ID)
	if err != nil {
		return 0, fmt.Errorf("loading recipients: %w", err)
	}

	text := CriticalMessage(tenant, subjects)

	var delivered atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.workers)

	for _, r := range configs {
		if !r.WantsCriticals(tenant.ID) {
			continue
		}
		g.Go(func() error {
			if err := d.messenger.Send(ctx, r.MessagingHandle, text); err != nil {
				slog.WarnContext(ctx, "critical notification failed",
					"tenant_id", tenant.ID, "recipient_id", r.ID, "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load()), nil
}

// CriticalMessage renders the summary sent for a tenant's newly critical subjects.
func CriticalMessage(tenant domain.Tenant, subjects []domain.Subject) string {
	names := make([]string, 0, len(subjects))
	for _, s := range subjects {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		names = append(names, name)
	}
	sort.Strings(names)

	tenantName := tenant.Name
	if tenantName == "" {
		tenantName = tenant.ID
	}

	var b strings.Builder
	if len(names) == 1 {
		fmt.Fprintf(&b, "⚠️ %s: 1 person became critical\n", tenantName)
	} else {
		fmt.Fprintf(&b, "⚠️ %s: %d people became critical\n", tenantName, len(names))
	}
	for _, n := range names {
		b.WriteString("\n- ")
		b.WriteString(n)
	}
	return b.String()
}
