package prices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/pokepack/internal/httpx"
	"github.com/guarzo/pokepack/internal/model"
)

// trackerServer serves /cards/{id} from byID and /search from byName.
func trackerServer(t *testing.T, byID map[string]string, byName map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RequestURI())
		switch {
		case strings.HasPrefix(r.URL.Path, "/cards/"):
			body, ok := byID[strings.TrimPrefix(r.URL.Path, "/cards/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, body)
		case r.URL.Path == "/search":
			body, ok := byName[r.URL.Query().Get("q")]
			if !ok {
				body = `{"results":[]}`
			}
			fmt.Fprint(w, body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestClient_CardPrices(t *testing.T) {
	srv, _ := trackerServer(t, map[string]string{
		"base1-4": `{"prices":{"holofoil":{"market":412.5},"normal":{"market":null},"firstEdition":{"market":9000}}}`,
		"empty-1": `{"prices":{"holofoil":{"market":null}}}`,
	}, nil)
	c := NewClient(srv.URL, "", nil)

	got, err := c.CardPrices(context.Background(), "base1-4")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 412.5, *got[model.VariantHolofoil].Market)
	assert.Equal(t, 9000.0, *got[model.VariantFirstEditionHolofoil].Market)
	assert.NotContains(t, got, model.VariantNormal)

	_, err = c.CardPrices(context.Background(), "empty-1")
	assert.ErrorIs(t, err, ErrNoPrices)

	_, err = c.CardPrices(context.Background(), "missing-1")
	var se *httpx.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClient_AuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "secret", nil).Search(context.Background(), "Pikachu")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
}

func TestClient_SearchEscapesName(t *testing.T) {
	srv, requests := trackerServer(t, nil, map[string]string{
		"Farfetch'd & Co": `{"results":[{"name":"Farfetch'd & Co","prices":{"normal":{"market":1.5}}}]}`,
	})

	got, err := NewClient(srv.URL, "", nil).Search(context.Background(), "Farfetch'd & Co")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.5, *got[0].Prices.Variants()[model.VariantNormal].Market)
	assert.Contains(t, (*requests)[0], "q=Farfetch%27d+%26+Co")
}

func TestTrackerPrices_VariantsNil(t *testing.T) {
	var p *TrackerPrices
	assert.Empty(t, p.Variants())
}
