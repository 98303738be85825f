package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	orderNumberDateLayout = "20060102"
	orderNumberSeqDigits  = 5
	MaxOrderSequence      = 99999
)

// OrderNumberPrefix is the UTC calendar day an order number is scoped to.
func OrderNumberPrefix(day time.Time) string {
	return day.UTC().Format(orderNumberDateLayout)
}

// NextOrderNumber derives the number following latest within prefix's day.
// An empty latest starts the day at sequence 1.
func NextOrderNumber(prefix, latest string) (string, error) {
	seq := 0
	if latest != "" {
		if !strings.HasPrefix(latest, prefix) || len(latest) != len(prefix)+orderNumberSeqDigits {
			return "", fmt.Errorf("order number %q does not belong to day %s", latest, prefix)
		}
		parsed, err := strconv.Atoi(latest[len(prefix):])
		if err != nil {
			return "", fmt.Errorf("parse order sequence %q: %w", latest, err)
		}
		seq = parsed
	}
	seq++
	if seq > MaxOrderSequence {
		return "", ErrOrderNumberExhausted
	}
	return fmt.Sprintf("%s%0*d", prefix, orderNumberSeqDigits, seq), nil
}
