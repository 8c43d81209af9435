package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/torqueworks/torqueworks/internal/shared"
)

// ErrNumberTaken is returned by an insert whose invoice number already exists.
var ErrNumberTaken = errors.New("invoice number already taken")

// ErrNumberExhausted means every allocation attempt collided.
var ErrNumberExhausted = fmt.Errorf("invoice number allocation exhausted: %w", shared.ErrConflict)

// DefaultNumberAttempts bounds AllocateNumber retries.
const DefaultNumberAttempts = 5

const numberPrefix = "INV-"

// FormatNumber renders INV-YYYYMMDD-NNN. Sequences above 999 widen instead of
// wrapping.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s-%03d", numberPrefix, day.Format("20060102"), seq)
}

// ParseNumber splits an invoice number into its day and sequence.
func ParseNumber(number string) (time.Time, int, error) {
	rest, ok := strings.CutPrefix(number, numberPrefix)
	if !ok {
		return time.Time{}, 0, fmt.Errorf("invoice number %q: missing prefix", number)
	}
	datePart, seqPart, ok := strings.Cut(rest, "-")
	if !ok || len(seqPart) < 3 {
		return time.Time{}, 0, fmt.Errorf("invoice number %q: malformed", number)
	}
	day, err := time.Parse("20060102", datePart)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invoice number %q: %w", number, err)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 1 {
		return time.Time{}, 0, fmt.Errorf("invoice number %q: bad sequence", number)
	}
	return day, seq, nil
}

// SequenceSource reports the highest sequence already stored for a day.
type SequenceSource interface {
	MaxSequence(ctx context.Context, day time.Time) (int, error)
}

// AllocateNumber picks the next free number for day and hands it to insert.
// When insert reports ErrNumberTaken the next candidate is tried, up to
// attempts times. A number counts as used only once insert succeeds.
func AllocateNumber(ctx context.Context, src SequenceSource, day time.Time, attempts int, insert func(ctx context.Context, number string) error) (string, error) {
	if attempts <= 0 {
		attempts = DefaultNumberAttempts
	}
	seq, err := src.MaxSequence(ctx, day)
	if err != nil {
		return "", fmt.Errorf("read invoice sequence: %w", err)
	}
	for i := 0; i < attempts; i++ {
		seq++
		number := FormatNumber(day, seq)
		err := insert(ctx, number)
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return "", err
		}
	}
	return "", ErrNumberExhausted
}
