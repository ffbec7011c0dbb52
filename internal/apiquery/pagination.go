package apiquery

import "listquery/internal/queryspec"

// Pagination derives offsets from page numbers over an Options container. Pages start at 1.
type Pagination struct {
	Options     *Options
	PerPage     int
	CurrentPage int
}

// NewPagination wraps opts. A nil opts starts from an empty container; perPage <= 0
// uses the container's current limit.
func NewPagination(opts *Options, perPage int) *Pagination {
	if opts == nil {
		opts = New(nil)
	}
	if perPage <= 0 {
		perPage = opts.spec.Limit
	}
	return &Pagination{Options: opts, PerPage: perPage, CurrentPage: 1}
}

// URL returns the current query string with a leading "?".
func (p *Pagination) URL() (string, error) {
	qs, err := p.Options.QueryString()
	if err != nil {
		return "", err
	}
	return "?" + qs, nil
}

// ChangePage moves to page and returns the query string for it.
func (p *Pagination) ChangePage(page int) (string, error) {
	if err := p.setCurrentPage(page); err != nil {
		return "", err
	}
	return p.URL()
}

// LoadAndMerge merges u into the container, then applies its page. ClearParams
// without a page returns to the first page.
func (p *Pagination) LoadAndMerge(u Update) error {
	page := u.Page
	u.Page = nil
	if err := p.Options.LoadAndMerge(u); err != nil {
		return err
	}
	if page != nil {
		if err := p.setCurrentPage(*page); err != nil {
			return err
		}
	}
	if u.ClearParams && page == nil {
		p.CurrentPage = 1
	}
	return nil
}

func (p *Pagination) setCurrentPage(page int) error {
	if page == 0 {
		return queryspec.FieldErrorf("page", "Page number cannot be 0")
	}
	if page < 0 {
		return queryspec.FieldErrorf("page", "Invalid page number: %d. Must be a positive integer.", page)
	}
	if err := p.Options.SetOffset((page - 1) * p.PerPage); err != nil {
		return err
	}
	p.CurrentPage = page
	return nil
}
