package listing

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/templates-listing/internal/catalog"
	"finitefield.org/templates-listing/internal/media"
	"finitefield.org/templates-listing/internal/sheet"
)

type loaderFunc func(ctx context.Context, source string) ([]catalog.RawRecord, error)

func (f loaderFunc) Load(ctx context.Context, source string) ([]catalog.RawRecord, error) {
	return f(ctx, source)
}

func staticLoader(rows []catalog.RawRecord) Loader {
	return loaderFunc(func(context.Context, string) ([]catalog.RawRecord, error) {
		return rows, nil
	})
}

func failingLoader(err error) Loader {
	return loaderFunc(func(context.Context, string) ([]catalog.RawRecord, error) {
		return nil, err
	})
}

func noImage(string, string, bool, []media.Breakpoint) template.HTML { return "" }

// twentyRows returns 15 email templates followed by 5 meta-ad templates.
func twentyRows() []catalog.RawRecord {
	rows := make([]catalog.RawRecord, 0, 20)
	for i := 0; i < 20; i++ {
		row := catalog.RawRecord{"Opportunity": fmt.Sprintf("Template %02d", i)}
		if i < 15 {
			row["Email"] = "true"
			row["Email1Pod"] = fmt.Sprintf("email-%d.png", i)
		} else {
			row["MetaAd"] = "true"
			row["MetaAd1x1"] = fmt.Sprintf("meta-%d.jpg", i)
		}
		rows = append(rows, row)
	}
	return rows
}

func startReady(t *testing.T, rows []catalog.RawRecord, opts ...Option) *Listing {
	t.Helper()
	opts = append([]Option{WithImage(noImage), WithBasePath("/p/page-1/blocks/block-0")}, opts...)
	l := New("block-0", "https://example.com/templates.json", staticLoader(rows), opts...)
	l.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Await(ctx))
	require.Equal(t, Ready, l.State())
	return l
}

func titles(v View) []string {
	out := make([]string, 0, len(v.Cards))
	for _, c := range v.Cards {
		out = append(out, c.Title)
	}
	return out
}

func TestListingWithoutSourceStaysIdle(t *testing.T) {
	t.Parallel()

	called := false
	l := New("b", "  ", loaderFunc(func(context.Context, string) ([]catalog.RawRecord, error) {
		called = true
		return nil, nil
	}))
	l.Start(context.Background())

	<-l.Done()
	require.Equal(t, Idle, l.State())
	require.False(t, called)
	v := l.View()
	require.Empty(t, v.FailureMessage)
	require.Empty(t, v.Cards)
	require.ErrorIs(t, l.Err(), sheet.ErrMissingDataSource)
}

func TestListingLoadsFirstPage(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows())
	v := l.View()

	require.True(t, v.Ready())
	require.Len(t, v.Cards, 8)
	require.Equal(t, "Template 00", v.Cards[0].Title)
	require.NotNil(t, v.Pager)
	require.Equal(t, "Page 1 of 3", v.Pager.PageLabel())
	require.True(t, v.Pager.PrevDisabled)
	require.False(t, v.Pager.NextDisabled)
	require.Equal(t, "/p/page-1/blocks/block-0/page", v.Pager.Action)
	require.Equal(t, "/p/page-1/blocks/block-0/filters", v.Filters.Action)
	for _, opt := range v.Filters.Options {
		require.True(t, opt.Checked)
	}
}

func TestListingFilterChangeResetsPage(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows())
	require.NoError(t, l.GoToPage(l.Generation(), 2))
	require.NoError(t, l.GoToPage(l.Generation(), 3))

	v := l.View()
	require.Equal(t, 3, v.Pager.Page)
	require.Len(t, v.Cards, 4)
	require.True(t, v.Pager.NextDisabled)

	require.NoError(t, l.SetFilters(catalog.NewCategorySet(catalog.CategoryMetaAd)))
	v = l.View()
	require.Equal(t, 1, v.Pager.Page)
	require.Equal(t, 5, v.Pager.Total)
	require.True(t, v.Pager.NextDisabled)
	require.True(t, v.Pager.PrevDisabled)
	require.Equal(t, []string{
		"Template 15", "Template 16", "Template 17", "Template 18", "Template 19",
	}, titles(v))
}

func TestListingPageChangeKeepsFilters(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows(), WithPageSize(4))
	require.NoError(t, l.SetFilters(catalog.NewCategorySet(catalog.CategoryMetaAd)))
	require.NoError(t, l.GoToPage(l.Generation(), 2))

	v := l.View()
	require.Equal(t, []string{"Template 19"}, titles(v))
	require.False(t, v.Filters.Options[0].Checked)
	require.True(t, v.Filters.Options[2].Checked)
	require.Equal(t, "Showing 5 of 5 templates", v.Pager.ShowingLabel())
}

func TestListingNoFiltersShowsEmptyMessage(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows())
	require.NoError(t, l.SetFilters(catalog.NewCategorySet()))

	v := l.View()
	require.Empty(t, v.Cards)
	require.Nil(t, v.Pager)
	require.Equal(t, EmptyMessage, v.EmptyMessage)
}

func TestListingRejectsStaleEvents(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows())
	stale := l.Generation()
	require.NoError(t, l.GoToPage(stale, 2))
	require.Greater(t, l.Generation(), stale)

	require.ErrorIs(t, l.GoToPage(stale, 3), ErrStale)
	_, err := l.Flip(stale, 0)
	require.ErrorIs(t, err, ErrStale)
	_, err = l.Chip(stale, 0, 0)
	require.ErrorIs(t, err, ErrStale)
}

func TestListingRejectsOutOfRangePages(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows())
	require.ErrorIs(t, l.GoToPage(l.Generation(), 0), ErrPageOutOfRange)
	require.ErrorIs(t, l.GoToPage(l.Generation(), 4), ErrPageOutOfRange)
}

func TestListingFlipAndChip(t *testing.T) {
	t.Parallel()

	l := startReady(t, twentyRows(), WithDebounce(0))
	gen := l.Generation()

	res, err := l.Flip(gen, 2)
	require.NoError(t, err)
	require.Equal(t, 2, res.Flipped)
	res, err = l.Flip(gen, 3)
	require.NoError(t, err)
	require.Equal(t, 3, res.Flipped)

	v := l.View()
	for _, c := range v.Cards {
		require.Equal(t, c.Index == 3, c.Flipped, c.Title)
	}

	chip, err := l.Chip(gen, 1, 0)
	require.NoError(t, err)
	require.Equal(t, "email-1.png", chip.Locator)
	require.Equal(t, gen, l.Generation(), "flip and chip events do not rebuild")

	require.NoError(t, l.GoToPage(gen, 2))
	for _, c := range l.View().Cards {
		require.False(t, c.Flipped, "rebuilt cards start unflipped")
	}
}

func TestListingFetchFailure(t *testing.T) {
	t.Parallel()

	for name, err := range map[string]error{
		"fetch": &sheet.FetchError{URL: "https://example.com/t.json", Status: 404},
		"parse": &sheet.ParseError{URL: "https://example.com/t.json", Err: errors.New("bad")},
	} {
		l := New("b", "https://example.com/t.json", failingLoader(err))
		l.Start(context.Background())
		<-l.Done()

		require.Equal(t, Failed, l.State(), name)
		v := l.View()
		require.True(t, v.Failed(), name)
		require.Equal(t, FailureMessage, v.FailureMessage, name)
		require.Equal(t, "https://example.com/t.json", v.DataSource, name)
		require.ErrorIs(t, l.SetFilters(nil), ErrNotReady, name)
	}
}

func TestListingStaysLoadingWhileFetchHangs(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	l := New("b", "https://example.com/t.json", loaderFunc(func(ctx context.Context, _ string) ([]catalog.RawRecord, error) {
		<-release
		return twentyRows(), nil
	}), WithImage(noImage))

	reqCtx, cancelReq := context.WithCancel(context.Background())
	l.Start(reqCtx)
	cancelReq()

	require.Equal(t, Loading, l.State())
	require.True(t, l.View().Loading())
	_, err := l.Flip(0, 0)
	require.ErrorIs(t, err, ErrNotReady)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Await(ctx), context.DeadlineExceeded)
	require.Equal(t, Loading, l.State())

	close(release)
	<-l.Done()
	require.Equal(t, Ready, l.State(), "the fetch outlives the request that started it")
}

func TestListingStartIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := make(chan struct{}, 4)
	l := New("b", "https://example.com/t.json", loaderFunc(func(context.Context, string) ([]catalog.RawRecord, error) {
		calls <- struct{}{}
		return nil, nil
	}))
	l.Start(context.Background())
	l.Start(context.Background())
	<-l.Done()

	require.Len(t, calls, 1)
	require.Equal(t, Ready, l.State())
	v := l.View()
	require.Equal(t, EmptyMessage, v.EmptyMessage)
}
