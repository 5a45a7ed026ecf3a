package models

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var allSlots = buildSlots()

func buildSlots() []string {
	slots := make([]string, 0, SlotsPerDay)
	for m := 0; m < 24*60; m += SlotMinutes {
		slots = append(slots, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return slots
}

// AllSlots returns the bookable buckets of a day, 00:00 through 23:30.
func AllSlots() []string {
	return append([]string(nil), allSlots...)
}

// IsValidSlot reports whether t is exactly one of the day's buckets.
func IsValidSlot(t string) bool {
	parsed, err := time.Parse(TimeLayout, t)
	if err != nil || parsed.Format(TimeLayout) != t {
		return false
	}
	return parsed.Minute()%SlotMinutes == 0
}

// IsValidDate reports whether d is a real calendar date in YYYY-MM-DD form.
func IsValidDate(d string) bool {
	parsed, err := time.Parse(DateLayout, d)
	return err == nil && parsed.Format(DateLayout) == d
}

// FreeSlots returns the grid minus booked times, preserving grid order.
func FreeSlots(booked []string) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	free := make([]string, 0, len(allSlots))
	for _, s := range allSlots {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}

// NewBookingID builds a client-facing id like CN-LXK2J9A0-4F1QZ.
func NewBookingID(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	suffix := make([]byte, BookingIDSuffixLen)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return fmt.Sprintf("%s-%s-%s", BookingIDPrefix, ts, suffix)
}
