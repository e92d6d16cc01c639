package core

import "strconv"

// Pager locates one page inside a result set of Total items.
type Pager struct {
	Number   int
	Size     int
	Total    int
	NumPages int
}

// Page is a Pager together with the items it selected.
type Page[T any] struct {
	Pager
	Items []T
}

// Paginate resolves a raw page number. Non-numeric input selects the first
// page; numbers outside the valid range select the last one. An empty result
// set still has one (empty) page.
func Paginate(total int, rawPage string, size int) Pager {
	if size < 1 {
		size = 1
	}
	if total < 0 {
		total = 0
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}

	number, err := strconv.Atoi(rawPage)
	switch {
	case err != nil:
		number = 1
	case number < 1 || number > pages:
		number = pages
	}

	return Pager{Number: number, Size: size, Total: total, NumPages: pages}
}

// Offset is the index of the first item on the page.
func (p Pager) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Pager) HasPrevious() bool { return p.Number > 1 }
func (p Pager) HasNext() bool     { return p.Number < p.NumPages }
func (p Pager) Previous() int     { return p.Number - 1 }
func (p Pager) Next() int         { return p.Number + 1 }

// Slice applies the pager to an in-memory list.
func Slice[T any](items []T, p Pager) []T {
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
