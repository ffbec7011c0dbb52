// Package apiquery accumulates a list-query specification through loads, merges and
// incremental edits, and hands it to the planner. Every mutation validates the result
// and applies the container's restriction policy before it is committed.
//
// An Options value is owned by one caller; it is not safe for concurrent mutation.
package apiquery

import (
	"fmt"

	"listquery/internal/introspection"
	"listquery/internal/planner"
	"listquery/internal/queryparse"
	"listquery/internal/queryspec"
	"listquery/internal/restrict"
)

// State tracks how the current specification was produced.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateMerged
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateMerged:
		return "merged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Update carries the parts of a specification to load or merge. Nil parts are absent.
type Update struct {
	queryparse.Fragment
	// Page, when set, recomputes the offset from the effective limit. Pages start at 1.
	Page *int
	// ClearParams resets everything except required filters before merging.
	ClearParams bool
}

// Option configures an Options container.
type Option func(*Options)

// WithDefaultLimit sets the limit used for new and cleared specifications.
func WithDefaultLimit(limit int) Option {
	return func(o *Options) {
		if limit > 0 {
			o.defaultLimit = limit
		}
	}
}

// Options is a versioned specification container.
type Options struct {
	spec         queryspec.Spec
	policy       *restrict.Policy
	state        State
	version      int
	defaultLimit int
}

// New returns an empty container. A nil policy allows every field and relation.
func New(policy *restrict.Policy, opts ...Option) *Options {
	o := &Options{
		policy:       policy,
		defaultLimit: queryspec.DefaultLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.spec = o.emptySpec()
	return o
}

// FromQueryString builds a container loaded from a URL query string.
func FromQueryString(raw string, policy *restrict.Policy, opts ...Option) (*Options, error) {
	frag, err := queryparse.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	o := New(policy, opts...)
	if err := o.Load(Update{Fragment: frag}); err != nil {
		return nil, err
	}
	return o, nil
}

// FromRecord builds a container loaded from a pre-split record.
func FromRecord(record queryparse.Record, policy *restrict.Policy, opts ...Option) (*Options, error) {
	frag, err := queryparse.ParseRecord(record)
	if err != nil {
		return nil, err
	}
	o := New(policy, opts...)
	if err := o.Load(Update{Fragment: frag}); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Options) emptySpec() queryspec.Spec {
	spec := queryspec.New()
	spec.Limit = o.defaultLimit
	return spec
}

// State returns the container state.
func (o *Options) State() State { return o.state }

// Version counts committed mutations.
func (o *Options) Version() int { return o.version }

// Policy returns the restriction policy applied on every commit.
func (o *Options) Policy() *restrict.Policy { return o.policy }

// Spec returns a deep copy of the current specification.
func (o *Options) Spec() queryspec.Spec { return o.spec.Clone() }

// Load replaces the specification with u applied to defaults.
func (o *Options) Load(u Update) error {
	next := u.ApplyTo(o.emptySpec())
	if err := applyPage(&next, u.Page); err != nil {
		return err
	}
	return o.commit(next, StateLoaded)
}

// LoadAndMerge merges u into the current specification. Required filters survive; an
// incoming filter on the key of a required filter is dropped; the remaining filters
// are replaced by the incoming list when one is present.
func (o *Options) LoadAndMerge(u Update) error {
	base := o.spec.Clone()
	required := requiredFilters(base.Where)
	if u.ClearParams {
		base = o.emptySpec()
		base.Where = required
	}

	next := base.Clone()
	if u.Where != nil {
		next.Where = append(cloneFilters(required), dropRequiredKeys(u.Where, required)...)
	}
	if u.WhereGroups != nil {
		next.WhereGroups = u.WhereGroups
	}
	if u.Relations != nil {
		next.Relations = u.Relations
	}
	if u.OrderBy != nil {
		next.OrderBy = u.OrderBy
	}
	if u.Limit != nil {
		next.Limit = *u.Limit
	}
	if u.Offset != nil {
		next.Offset = *u.Offset
	}
	if err := applyPage(&next, u.Page); err != nil {
		return err
	}
	return o.commit(next, StateMerged)
}

// AddFilter appends a filter to the where list.
func (o *Options) AddFilter(f queryspec.Filter) error {
	next := o.spec.Clone()
	next.Where = append(next.Where, f.Normalized())
	return o.commit(next, o.editState())
}

// AddWhereGroup appends a filter group.
func (o *Options) AddWhereGroup(g queryspec.FilterGroup) error {
	next := o.spec.Clone()
	conditions := make([]queryspec.Filter, 0, len(g.Conditions))
	for _, f := range g.Conditions {
		conditions = append(conditions, f.Normalized())
	}
	g.Conditions = conditions
	next.WhereGroups = append(next.WhereGroups, g)
	return o.commit(next, o.editState())
}

// AddRelation appends a relation to join.
func (o *Options) AddRelation(r queryspec.Relation) error {
	next := o.spec.Clone()
	next.Relations = append(next.Relations, r)
	return o.commit(next, o.editState())
}

// AddOrderBy appends an order entry.
func (o *Options) AddOrderBy(entry queryspec.OrderEntry) error {
	next := o.spec.Clone()
	next.OrderBy = append(next.OrderBy, entry)
	return o.commit(next, o.editState())
}

// SetLimit sets the page size.
func (o *Options) SetLimit(limit int) error {
	next := o.spec.Clone()
	next.Limit = limit
	return o.commit(next, o.editState())
}

// SetOffset sets the number of rows to skip.
func (o *Options) SetOffset(offset int) error {
	next := o.spec.Clone()
	next.Offset = offset
	return o.commit(next, o.editState())
}

// QueryString encodes the current specification in the wire format, without a leading "?".
func (o *Options) QueryString() (string, error) {
	return queryparse.Encode(o.spec)
}

// ToFindOptions compiles the specification into declarative find options.
func (o *Options) ToFindOptions(table *introspection.Table) (*planner.FindOptions, error) {
	return planner.ToFindOptions(o.spec, table)
}

// ToQueryBuilder compiles the specification into a parameterized plan.
func (o *Options) ToQueryBuilder(table *introspection.Table) (*planner.QueryPlan, error) {
	return planner.ToQueryBuilder(o.spec, table)
}

func (o *Options) editState() State {
	if o.state == StateEmpty {
		return StateLoaded
	}
	return o.state
}

// commit validates next, applies the policy, and installs the result. The current
// specification is left untouched on error.
func (o *Options) commit(next queryspec.Spec, state State) error {
	if err := queryspec.Validate(next); err != nil {
		return err
	}
	restricted, err := restrict.Enforce(next, o.policy)
	if err != nil {
		return err
	}
	o.spec = restricted
	o.state = state
	o.version++
	return nil
}

func applyPage(spec *queryspec.Spec, page *int) error {
	if page == nil {
		return nil
	}
	if *page == 0 {
		return queryspec.FieldErrorf("page", "Page number cannot be 0")
	}
	if *page < 0 {
		return queryspec.FieldErrorf("page", "Invalid page number: %d. Must be a positive integer.", *page)
	}
	spec.Offset = (*page - 1) * spec.Limit
	return nil
}

func requiredFilters(filters []queryspec.Filter) []queryspec.Filter {
	var out []queryspec.Filter
	for _, f := range filters {
		if f.Require {
			out = append(out, f)
		}
	}
	return out
}

func dropRequiredKeys(incoming, required []queryspec.Filter) []queryspec.Filter {
	out := make([]queryspec.Filter, 0, len(incoming))
	for _, f := range incoming {
		if hasKey(required, f.Key) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func hasKey(filters []queryspec.Filter, key string) bool {
	for _, f := range filters {
		if f.Key == key {
			return true
		}
	}
	return false
}

func cloneFilters(filters []queryspec.Filter) []queryspec.Filter {
	if filters == nil {
		return nil
	}
	return append([]queryspec.Filter(nil), filters...)
}
