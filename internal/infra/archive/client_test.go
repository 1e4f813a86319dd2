package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FindAudio(t *testing.T) {
	// Search returns two items; the first has no downloadable file, the
	// second verifies on its .ogg.
	mux := http.NewServeMux()
	mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("q"), "mediatype:audio")
		fmt.Fprint(w, `{"response":{"docs":[{"identifier":"broken-item","title":"Broken"},{"identifier":"good-item","title":"Good"}]}}`)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/download/good-item/good-item.ogg" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	got, err := c.FindAudio(context.Background(), "some song")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/download/good-item/good-item.ogg", got)
}

func TestClient_FindAudio_NothingVerifies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"docs":[{"identifier":"broken-item","title":"Broken"}]}}`)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.FindAudio(context.Background(), "some song")
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestClient_FindAudio_EmptyResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"docs":[]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.FindAudio(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNoAudio)
}
