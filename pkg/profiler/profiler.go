// Package profiler estimates construction cost from a building profile: a
// class and subclass pick a base rate per square metre, storey count and
// complexity selections scale it, and the catalog's section weights split
// the total into a starting cost plan.
package profiler

import (
	"errors"
	"time"

	"github.com/costwise/costwise/pkg/allocation"
	"github.com/costwise/costwise/pkg/money"
)

var ErrProfileNotFound = errors.New("building profile not found")
var ErrProfileInvalid = errors.New("profile needs a positive floor area and at least one storey")

// Profile describes the building of one project. Complexity maps a catalog
// factor to the selected option. One profile per project.
type Profile struct {
	Uid            string
	ProjectUid     string
	Class          string
	Subclass       string
	GrossFloorArea int
	Storeys        int
	Complexity     map[string]string
	UpdatedAt      time.Time
}

// Estimate is the costed result for a profile. Multipliers are expressed in
// basis points, 10000 meaning a factor of one. Plan carries the catalog's
// default section shares so the client can adjust them before applying the
// estimate to the cost plan.
type Estimate struct {
	ProjectUid     string
	Class          string
	Subclass       string
	GrossFloorArea int
	Storeys        int
	BaseRate       money.Cents
	Base           money.Cents
	StoreyBp       int
	ComplexityBp   map[string]int
	Total          money.Cents
	Plan           allocation.Plan
	Sections       []allocation.LineAmount
}
