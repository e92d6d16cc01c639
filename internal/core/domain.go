package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ContactStatusSent is the only status a contact message gets on submission.
const ContactStatusSent = "Enviado"

type (
	// Recharge is one charging session.
	Recharge struct {
		ID       int64
		UserID   int64
		Date     time.Time
		KWh      float64
		Cost     float64
		Exempt   bool // free session, excluded from paid totals
		Odometer float64
		Notes    string
		Location string
	}

	// ComparisonConfig holds the gasoline parameters used to compute savings.
	ComparisonConfig struct {
		UserID      int64
		FuelPrice   float64 // price per litre
		FuelEconomy float64 // km per litre
	}

	User struct {
		ID           int64
		Username     string
		Email        string
		FirstName    string
		PasswordHash string
		IsStaff      bool
		CreatedAt    time.Time
		LastLogin    time.Time
	}

	// UserSummary is a user plus the number of recharges they own.
	UserSummary struct {
		User
		Recharges int
	}

	ContactMessage struct {
		ID      int64
		Name    string
		Email   string
		Message string
		SentAt  time.Time
		Status  string
	}
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("already exists")
	ErrZeroDate      = errors.New("date cannot be zero")
	ErrNegativeKWh   = errors.New("kwh cannot be negative")
	ErrInvalidNumber = errors.New("invalid number")
	ErrLocationLong  = errors.New("location too long (max 100 characters)")
	ErrEmptyUsername = errors.New("empty username")
	ErrEmptyMessage  = errors.New("empty message")
)

// MaxLocationLength bounds Recharge.Location.
const MaxLocationLength = 100

func (r Recharge) Validate() error {
	if r.Date.IsZero() {
		return ErrZeroDate
	}
	for _, v := range []float64{r.KWh, r.Cost, r.Odometer} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidNumber
		}
	}
	if r.KWh < 0 {
		return ErrNegativeKWh
	}
	if len([]rune(r.Location)) > MaxLocationLength {
		return ErrLocationLong
	}
	return nil
}

// Month returns the YYYY-MM key used to group recharges.
func (r Recharge) Month() string {
	return r.Date.Format("2006-01")
}

// Usable reports whether savings can be derived from the config.
// A nil receiver is valid and never usable.
func (c *ComparisonConfig) Usable() bool {
	return c != nil && c.FuelEconomy > 0
}

// FuelCostPerKm is the gasoline cost of one kilometre, 0 when unusable.
func (c *ComparisonConfig) FuelCostPerKm() float64 {
	if !c.Usable() {
		return 0
	}
	return c.FuelPrice / c.FuelEconomy
}

// FuelCost is the gasoline cost of driving km kilometres, 0 when unusable.
func (c *ComparisonConfig) FuelCost(km float64) float64 {
	if !c.Usable() {
		return 0
	}
	return (km / c.FuelEconomy) * c.FuelPrice
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	return nil
}

// DisplayName prefers the first name over the username.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.FirstName) != "" {
		return u.FirstName
	}
	return u.Username
}

func (m ContactMessage) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Short returns the message truncated to 50 characters for listings.
func (m ContactMessage) Short() string {
	runes := []rune(m.Message)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return m.Message
}
