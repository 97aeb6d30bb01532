package pager

import (
	"fmt"
	"strconv"
)

// DefaultSize is the number of cards per page.
const DefaultSize = 8

// View describes the pager controls for one listing page.
type View struct {
	Action       string
	Total        int
	Page         int
	Size         int
	Showing      int
	TotalPages   int
	PrevDisabled bool
	NextDisabled bool
	PrevPage     int
	NextPage     int
}

// Render computes the pager for page of a result set of total records. A
// non-positive size falls back to DefaultSize.
func Render(total, page, size int, hasMore bool, action string) View {
	if size <= 0 {
		size = DefaultSize
	}
	if page < 1 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	return View{
		Action:       action,
		Total:        total,
		Page:         page,
		Size:         size,
		Showing:      min(total, page*size),
		TotalPages:   TotalPages(total, size),
		PrevDisabled: page == 1,
		NextDisabled: !hasMore,
		PrevPage:     page - 1,
		NextPage:     page + 1,
	}
}

// TotalPages returns ceil(total/size), which is 0 for an empty result.
func TotalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// ShowingLabel returns the "Showing X of N templates" caption.
func (v View) ShowingLabel() string {
	return fmt.Sprintf("Showing %d of %d templates", v.Showing, v.Total)
}

// PageLabel returns the "Page P of T" caption.
func (v View) PageLabel() string {
	return "Page " + strconv.Itoa(v.Page) + " of " + strconv.Itoa(v.TotalPages)
}
