package project

import (
	"errors"
	"time"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInvalidCurrency = errors.New("currency must be a valid ISO-4217 code")
	ErrProjectArchived = errors.New("project is archived")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Project is a construction job with its own cost plan. Projects are never
// hard-deleted; archiving keeps variations and invoices auditable.
type Project struct {
	Uid    string
	Name   string
	Code   string
	Client string
	// Currency is the ISO-4217 code all monetary amounts of this project
	// are recorded in.
	Currency  string
	Status    Status
	CreatedAt time.Time
}
