package listing

import (
	"finitefield.org/templates-listing/internal/cards"
	"finitefield.org/templates-listing/internal/filters"
	"finitefield.org/templates-listing/internal/pager"
)

// Actions are the URLs the rendered block posts its events to.
type Actions struct {
	Self    string
	Filters string
	Page    string
	Flip    string
	Chip    string
}

// View is a snapshot of a listing ready to be rendered.
type View struct {
	ID         string
	State      State
	Generation uint64
	Actions    Actions

	Filters filters.View
	Cards   []cards.Card
	// Pager is nil when no template is visible.
	Pager        *pager.View
	EmptyMessage string

	FailureMessage string
	DataSource     string
}

// Loading reports whether the block should keep polling.
func (v View) Loading() bool { return v.State == Loading }

// Ready reports whether cards can be shown.
func (v View) Ready() bool { return v.State == Ready }

// Failed reports whether the failure message should be shown.
func (v View) Failed() bool { return v.State == Failed }

func (l *Listing) actions() Actions {
	return Actions{
		Self:    l.base,
		Filters: l.base + "/filters",
		Page:    l.base + "/page",
		Flip:    l.base + "/flip",
		Chip:    l.base + "/chip",
	}
}

// View snapshots the listing for rendering.
func (l *Listing) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := View{
		ID:         l.id,
		State:      l.state,
		Generation: l.gen,
		Actions:    l.actions(),
	}
	switch l.state {
	case Failed:
		v.FailureMessage = FailureMessage
		v.DataSource = l.source
	case Ready:
		v.Filters = filters.Render(v.Actions.Filters, l.active)
		if l.deck != nil {
			v.Cards = l.deck.Cards()
		}
		if l.visible == 0 {
			v.EmptyMessage = EmptyMessage
			break
		}
		p := pager.Render(l.visible, l.page, l.size, l.hasMore, v.Actions.Page)
		v.Pager = &p
	}
	return v
}
