// Package contract parses option contract identifiers.
//
// Two wire formats are accepted: the dashed form
// ROOT-YYYY-MM-DD-STRIKE-{C|P} (the root itself may contain dashes) and the
// OCC form where the last 15 characters encode YYMMDD{C|P}SSSSSSSS with the
// strike scaled by 1e3.
package contract

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotContract is the sentinel for identifiers that are not option
// contracts. Callers degrade features on it; they never treat it as fatal.
var ErrNotContract = errors.New("not an option contract id")

// Right is the option right, "C" or "P".
type Right string

const (
	Call Right = "C"
	Put  Right = "P"
)

// Contract is a parsed option contract identifier.
type Contract struct {
	ID     string
	Root   string
	Expiry time.Time // UTC midnight of the expiry date
	Strike float64
	Right  Right
}

// Parse decodes id in either dashed or OCC form.
func Parse(id string) (Contract, error) {
	if c, err := parseDashed(id); err == nil {
		return c, nil
	}
	return parseOCC(id)
}

func parseDashed(id string) (Contract, error) {
	parts := strings.Split(id, "-")
	if len(parts) < 6 {
		return Contract{}, ErrNotContract
	}
	n := len(parts)
	right := Right(parts[n-1])
	if right != Call && right != Put {
		return Contract{}, ErrNotContract
	}
	strike, err := strconv.ParseFloat(parts[n-2], 64)
	if err != nil || strike <= 0 {
		return Contract{}, ErrNotContract
	}
	year, err := strconv.Atoi(parts[n-5])
	if err != nil || len(parts[n-5]) != 4 {
		return Contract{}, ErrNotContract
	}
	month, err := strconv.Atoi(parts[n-4])
	if err != nil || month < 1 || month > 12 {
		return Contract{}, ErrNotContract
	}
	day, err := strconv.Atoi(parts[n-3])
	if err != nil || day < 1 || day > 31 {
		return Contract{}, ErrNotContract
	}
	root := strings.Join(parts[:n-5], "-")
	if root == "" {
		return Contract{}, ErrNotContract
	}
	return Contract{
		ID:     id,
		Root:   root,
		Expiry: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC),
		Strike: strike,
		Right:  right,
	}, nil
}

func parseOCC(id string) (Contract, error) {
	if len(id) < 16 {
		return Contract{}, ErrNotContract
	}
	tail := id[len(id)-15:]
	root := strings.TrimSpace(id[:len(id)-15])
	if root == "" {
		return Contract{}, ErrNotContract
	}
	yy, err := strconv.Atoi(tail[0:2])
	if err != nil {
		return Contract{}, ErrNotContract
	}
	mm, err := strconv.Atoi(tail[2:4])
	if err != nil || mm < 1 || mm > 12 {
		return Contract{}, ErrNotContract
	}
	dd, err := strconv.Atoi(tail[4:6])
	if err != nil || dd < 1 || dd > 31 {
		return Contract{}, ErrNotContract
	}
	right := Right(tail[6:7])
	if right != Call && right != Put {
		return Contract{}, ErrNotContract
	}
	raw, err := strconv.Atoi(tail[7:])
	if err != nil || raw <= 0 {
		return Contract{}, ErrNotContract
	}
	return Contract{
		ID:     id,
		Root:   root,
		Expiry: time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC),
		Strike: float64(raw) / 1000.0,
		Right:  right,
	}, nil
}

// DaysToExpiry returns whole days from the UTC calendar date of atMs to the
// expiry date. Negative for expired contracts.
func (c Contract) DaysToExpiry(atMs int64) int {
	at := time.UnixMilli(atMs).UTC()
	atDate := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	return int(c.Expiry.Sub(atDate).Hours() / 24)
}

// ExpiresOn reports whether the contract expires on the UTC calendar date of
// atMs (the 0DTE condition).
func (c Contract) ExpiresOn(atMs int64) bool {
	at := time.UnixMilli(atMs).UTC()
	return at.Year() == c.Expiry.Year() && at.Month() == c.Expiry.Month() && at.Day() == c.Expiry.Day()
}

// ExpiryKey returns the expiry as YYYY-MM-DD, used for grouping legs.
func (c Contract) ExpiryKey() string {
	return c.Expiry.Format("2006-01-02")
}
