package badge

import (
	"fmt"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

// Catalog is the read-only set of valid definitions the engine evaluates.
type Catalog struct {
	byID        map[string]Definition
	byCondition map[ConditionType][]Definition
	order       []string
}

// NewCatalog validates defs and keeps the valid ones. Each rejected
// definition is reported in the returned slice; a bad definition never
// disqualifies the others. Duplicate IDs keep the first occurrence.
func NewCatalog(defs []Definition) (*Catalog, []error) {
	c := &Catalog{
		byID:        make(map[string]Definition, len(defs)),
		byCondition: make(map[ConditionType][]Definition),
	}

	var rejected []error
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if _, dup := c.byID[d.ID]; dup {
			rejected = append(rejected, shared.NewDomainError("badge", "Load", shared.ErrConfiguration,
				fmt.Sprintf("duplicate badge id %q", d.ID)))
			continue
		}
		c.byID[d.ID] = d
		c.byCondition[d.ConditionType] = append(c.byCondition[d.ConditionType], d)
		c.order = append(c.order, d.ID)
	}

	return c, rejected
}

// Get returns a definition by ID.
func (c *Catalog) Get(id string) (Definition, error) {
	d, ok := c.byID[id]
	if !ok {
		return Definition{}, shared.Wrap(shared.ErrBadgeNotFound, "Get", "badge %q not found", id)
	}
	return d, nil
}

// ByCondition returns definitions watching the given counter.
func (c *Catalog) ByCondition(ct ConditionType) []Definition {
	return append([]Definition(nil), c.byCondition[ct]...)
}

// All returns every definition in load order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len returns the number of valid definitions.
func (c *Catalog) Len() int {
	return len(c.order)
}
