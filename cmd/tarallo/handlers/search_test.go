package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeeopen/tarallo/cmd/tarallo/middleware"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/logger"
)

type fakeSearches struct {
	SearchAPI
	user    string
	in      *models.SearchInput
	page    int
	perPage int
	err     error
}

func (f *fakeSearches) Search(_ context.Context, user string, in *models.SearchInput) (int64, error) {
	f.user = user
	f.in = in
	if in.Previous != nil {
		return *in.Previous, f.err
	}
	return 7, f.err
}

func (f *fakeSearches) GetResults(_ context.Context, _ int64, page, perPage, _ int) ([]*models.Item, error) {
	f.page = page
	f.perPage = perPage
	if f.err != nil {
		return nil, f.err
	}
	return []*models.Item{{Code: "HDD1"}, {Code: "HDD2"}}, nil
}

func (f *fakeSearches) GetResultsCount(context.Context, int64) (int64, error) {
	return 2, f.err
}

func searchServer(searches SearchAPI) *echo.Echo {
	e := echo.New()
	h := NewSearchHandler(searches, logger.Discard())

	v2 := e.Group("/v2", middleware.ExtractUsernameStrict())
	v2.POST("/searches", h.Search)
	v2.GET("/searches/:id/results", h.GetResults)
	v2.GET("/searches/:id/count", h.GetResultsCount)
	return e
}

func TestSearch_CreateAndRefine(t *testing.T) {
	searches := &fakeSearches{}
	e := searchServer(searches)

	rec := do(e, http.MethodPost, "/v2/searches",
		`{"features":[{"name":"capacity-byte","op":">","value":1000000000}]}`, "alice")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(7), decode(t, rec)["id"])
	assert.Equal(t, "alice", searches.user)
	require.Len(t, searches.in.Features, 1)
	assert.Equal(t, json.Number("1000000000"), searches.in.Features[0].Value)

	rec = do(e, http.MethodPost, "/v2/searches", `{"previous":7,"locations":["Chernobyl"]}`, "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), decode(t, rec)["id"])
}

func TestSearch_ForeignRefinementIsNotFound(t *testing.T) {
	searches := &fakeSearches{err: &models.NotFoundError{Kind: "search", ID: "7"}}

	rec := do(searchServer(searches), http.MethodPost, "/v2/searches", `{"previous":7}`, "mallory")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetResults_Paging(t *testing.T) {
	searches := &fakeSearches{}
	e := searchServer(searches)

	rec := do(e, http.MethodGet, "/v2/searches/7/results", "", "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, searches.page)
	assert.Equal(t, 0, searches.perPage)
	assert.Len(t, decode(t, rec)["items"], 2)

	rec = do(e, http.MethodGet, "/v2/searches/7/results?page=3&per_page=50", "", "alice")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, searches.page)
	assert.Equal(t, 50, searches.perPage)
}

func TestGetResults_BadID(t *testing.T) {
	for _, id := range []string{"abc", "0", "-4"} {
		rec := do(searchServer(&fakeSearches{}), http.MethodGet, "/v2/searches/"+id+"/results", "", "alice")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestGetResultsCount(t *testing.T) {
	rec := do(searchServer(&fakeSearches{}), http.MethodGet, "/v2/searches/7/count", "", "alice")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["count"])
}
