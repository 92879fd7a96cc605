// Package exceptions is the registry of caller identities that bypass AI
// screening. All mutation of exception contacts goes through this API; the
// orchestrator only reads.
package exceptions

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/vathakkar/ai-voice-concierge/internal/metrics"
	"github.com/vathakkar/ai-voice-concierge/internal/store"
)

// Registry exposes keyed lookup and management of exception contacts.
type Registry struct {
	store *store.Store
}

// NewRegistry creates a registry backed by the shared store.
func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// Lookup returns the active contact for a caller number, or nil when the
// number is unknown, inactive, or the store is unavailable. A lookup failure
// fails safe toward the screening path: it is logged and reported as a miss,
// never as a transfer.
func (r *Registry) Lookup(ctx context.Context, rawNumber string) *store.ExceptionContact {
	number := NormalizeNumber(rawNumber)
	if number == "" {
		return nil
	}
	contact, err := r.store.GetException(ctx, number)
	if err != nil {
		slog.Error("exception lookup failed, treating as miss", "number", number, "error", err)
		metrics.Errors.WithLabelValues("registry", "lookup").Inc()
		return nil
	}
	if contact == nil || !contact.Active {
		return nil
	}
	return contact
}

// Add upserts a contact. Re-adding a previously deactivated number
// reactivates and updates the existing row.
func (r *Registry) Add(ctx context.Context, rawNumber, name, category string) (*store.ExceptionContact, error) {
	return r.store.UpsertException(ctx, NormalizeNumber(rawNumber), name, category)
}

// Deactivate soft-deletes a contact. Unknown or already-inactive numbers are
// not an error.
func (r *Registry) Deactivate(ctx context.Context, rawNumber string) error {
	return r.store.DeactivateException(ctx, NormalizeNumber(rawNumber))
}

// ListActive returns all active contacts ordered by name.
func (r *Registry) ListActive(ctx context.Context) ([]store.ExceptionContact, error) {
	return r.store.ActiveExceptions(ctx)
}

// NormalizeNumber reduces a phone number to E.164. Ten-digit numbers are
// assumed to be US and get a +1 prefix; eleven digits with a leading 1 get a
// plus sign. Anything else keeps its digits with a plus prepended. Empty
// input normalizes to the empty string.
func NormalizeNumber(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	default:
		return "+" + d
	}
}
