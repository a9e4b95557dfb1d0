package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/marmos91/fragments/pkg/auth"
	"github.com/marmos91/fragments/pkg/convert"
	"github.com/marmos91/fragments/pkg/fragment"
	"github.com/marmos91/fragments/pkg/mediatype"
	"github.com/marmos91/fragments/pkg/metrics"
	"github.com/marmos91/fragments/pkg/store"
	blobmemory "github.com/marmos91/fragments/pkg/store/blob/memory"
	metamemory "github.com/marmos91/fragments/pkg/store/metadata/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	user1 = "user1@email.com"
	user2 = "user2@email.com"
)

// staticAuthenticator accepts any known email with password "pw".
type staticAuthenticator struct{}

func (staticAuthenticator) Authenticate(r *http.Request) (auth.Principal, error) {
	email, password, ok := r.BasicAuth()
	if !ok || password != "pw" || (email != user1 && email != user2) {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return auth.Principal{Email: email, OwnerID: auth.OwnerID(email)}, nil
}

type testAPI struct {
	t       *testing.T
	adapter *HTTPAdapter
	handler http.Handler
}

func newTestAPI(t *testing.T, config HTTPConfig, m metrics.HTTPMetrics) *testAPI {
	t.Helper()

	engine, err := convert.NewEngine(mediatype.Default())
	require.NoError(t, err)

	st := store.New(metamemory.NewMemoryMetadataStore(), blobmemory.NewMemoryBlobStore(), nil)
	t.Cleanup(func() { _ = st.Close() })

	a := New(config, staticAuthenticator{}, m)
	a.SetRepository(fragment.NewRepository(st, engine))

	return &testAPI{t: t, adapter: a, handler: a.Handler()}
}

func (api *testAPI) do(method, target, user, contentType string, body []byte) *httptest.ResponseRecorder {
	api.t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if user != "" {
		req.SetBasicAuth(user, "pw")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

// create posts data and returns the new fragment id.
func (api *testAPI) create(user, contentType, data string) string {
	api.t.Helper()

	rec := api.do(http.MethodPost, "/v1/fragments", user, contentType, []byte(data))
	require.Equal(api.t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Fragment struct {
			ID string `json:"id"`
		} `json:"fragment"`
	}
	require.NoError(api.t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(api.t, body.Fragment.ID)
	return body.Fragment.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) float64 {
	t.Helper()
	body := decode(t, rec)
	require.Equal(t, "error", body["status"])
	e, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, e["message"])
	return e["code"].(float64)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)

	rec := api.do(http.MethodGet, "/", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestUnauthenticated(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)

	rec := api.do(http.MethodGet, "/v1/fragments", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
	assert.Equal(t, float64(http.StatusUnauthorized), errorCode(t, rec))

	rec = api.do(http.MethodGet, "/v1/fragments", "nobody@email.com", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreate(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)

	rec := api.do(http.MethodPost, "/v1/fragments", user1, "text/plain", []byte("hello"))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	frag := body["fragment"].(map[string]any)
	assert.Equal(t, auth.OwnerID(user1), frag["ownerId"])
	assert.Equal(t, "text/plain", frag["type"])
	assert.Equal(t, float64(5), frag["size"])
	assert.NotEmpty(t, frag["created"])
	assert.NotEmpty(t, frag["updated"])

	assert.Equal(t, "http://example.com/v1/fragments/"+frag["id"].(string), rec.Header().Get("Location"))
}

func TestCreate_LocationFromAPIURL(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{APIURL: "https://fragments.example.org"}, nil)

	rec := api.do(http.MethodPost, "/v1/fragments", user1, "text/markdown", []byte("# hi"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://fragments.example.org/v1/fragments/"))
}

func TestCreate_ContentTypes(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)

	tests := []struct {
		name        string
		contentType string
		wantStatus  int
		wantType    string
	}{
		{"plain", "text/plain", http.StatusCreated, "text/plain"},
		{"charset", "text/plain; charset=utf-8", http.StatusCreated, "text/plain; charset=utf-8"},
		{"charset normalised", "Text/Plain;Charset=UTF-8", http.StatusCreated, "text/plain; charset=utf-8"},
		{"json", "application/json", http.StatusCreated, "application/json"},
		{"unsupported", "application/msword", http.StatusUnsupportedMediaType, ""},
		{"missing", "", http.StatusUnsupportedMediaType, ""},
		{"malformed", ";;;", http.StatusUnsupportedMediaType, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodPost, "/v1/fragments", user1, tt.contentType, []byte(`{"a":1}`))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusCreated {
				assert.Equal(t, float64(tt.wantStatus), errorCode(t, rec))
				return
			}
			frag := decode(t, rec)["fragment"].(map[string]any)
			assert.Equal(t, tt.wantType, frag["type"])
		})
	}
}

func TestCreate_BodyLimits(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{MaxBodyBytes: 8}, nil)

	rec := api.do(http.MethodPost, "/v1/fragments", user1, "text/plain", []byte("123456789"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = api.do(http.MethodPost, "/v1/fragments", user1, "text/plain", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/v1/fragments", user1, "text/plain", []byte("12345678"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGet(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)
	id := api.create(user1, "text/markdown", "# Hello")

	t.Run("raw", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/"+id, user1, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/markdown", rec.Header().Get("Content-Type"))
		assert.Equal(t, "# Hello", rec.Body.String())
	})

	t.Run("same type by extension", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/"+id+".md", user1, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "# Hello", rec.Body.String())
	})

	t.Run("converted", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/"+id+".html", user1, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "<h1>Hello</h1>")
	})

	t.Run("unsupported conversion", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/"+id+".png", user1, "", nil)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Equal(t, float64(http.StatusUnsupportedMediaType), errorCode(t, rec))
	})

	t.Run("unknown extension", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/"+id+".exe", user1, "", nil)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/does-not-exist", user1, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, float64(http.StatusNotFound), errorCode(t, rec))
	})

	t.Run("other owner", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/v1/fragments/"+id, user2, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGet_ConversionFailure(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)
	id := api.create(user1, "application/json", "{not json")

	rec := api.do(http.MethodGet, "/v1/fragments/"+id+".yaml", user1, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, float64(http.StatusUnprocessableEntity), errorCode(t, rec))
}

func TestInfo(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)
	id := api.create(user1, "text/csv", "a,b\n1,2\n")

	rec := api.do(http.MethodGet, "/v1/fragments/"+id+"/info", user1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	frag := decode(t, rec)["fragment"].(map[string]any)
	assert.Equal(t, id, frag["id"])
	assert.Equal(t, "text/csv", frag["type"])
	assert.Equal(t, float64(8), frag["size"])

	rec = api.do(http.MethodGet, "/v1/fragments/"+id+"/info", user2, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)

	rec := api.do(http.MethodGet, "/v1/fragments", user1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["fragments"])

	first := api.create(user1, "text/plain", "one")
	second := api.create(user1, "text/plain", "two")
	api.create(user2, "text/plain", "other")

	rec = api.do(http.MethodGet, "/v1/fragments", user1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{first, second}, decode(t, rec)["fragments"])

	rec = api.do(http.MethodGet, "/v1/fragments?expand=1", user1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	frags := decode(t, rec)["fragments"].([]any)
	require.Len(t, frags, 2)
	assert.Equal(t, first, frags[0].(map[string]any)["id"])
	assert.Equal(t, float64(3), frags[0].(map[string]any)["size"])
	assert.Equal(t, second, frags[1].(map[string]any)["id"])
}

func TestUpdate(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)
	id := api.create(user1, "text/plain", "short")

	rec := api.do(http.MethodPut, "/v1/fragments/"+id, user1, "text/plain", []byte("much longer"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	frag := decode(t, rec)["fragment"].(map[string]any)
	assert.Equal(t, float64(len("much longer")), frag["size"])

	rec = api.do(http.MethodGet, "/v1/fragments/"+id, user1, "", nil)
	assert.Equal(t, "much longer", rec.Body.String())

	t.Run("type mismatch", func(t *testing.T) {
		rec := api.do(http.MethodPut, "/v1/fragments/"+id, user1, "text/markdown", []byte("# x"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported type", func(t *testing.T) {
		rec := api.do(http.MethodPut, "/v1/fragments/"+id, user1, "application/msword", []byte("x"))
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		rec := api.do(http.MethodPut, "/v1/fragments/"+id, user1, "text/plain", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing", func(t *testing.T) {
		rec := api.do(http.MethodPut, "/v1/fragments/nope", user1, "text/plain", []byte("x"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDelete(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)
	id := api.create(user1, "text/plain", "bye")

	rec := api.do(http.MethodDelete, "/v1/fragments/"+id, user2, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodDelete, "/v1/fragments/"+id, user1, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = api.do(http.MethodGet, "/v1/fragments/"+id, user1, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodDelete, "/v1/fragments/"+id, user1, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 2}}, nil)

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/v1/fragments", user1, "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/v1/fragments", user1, "", nil).Code)

	rec := api.do(http.MethodGet, "/v1/fragments", user1, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Buckets are per owner
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/v1/fragments", user2, "", nil).Code)
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t, HTTPConfig{}, nil)

	rec := api.do(http.MethodGet, "/v2/fragments", user1, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, float64(http.StatusNotFound), errorCode(t, rec))
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	api := newTestAPI(t, HTTPConfig{}, metrics.NewHTTPMetricsWith(reg))

	id := api.create(user1, "text/plain", "x")
	api.do(http.MethodGet, "/v1/fragments/"+id, user1, "", nil)
	api.do(http.MethodGet, "/v1/fragments/missing", user1, "", nil)

	count, err := testutil.GatherAndCount(reg, "fragments_http_requests_total")
	require.NoError(t, err)
	// POST 201, GET 200, GET 404 on the same templated route
	assert.Equal(t, 3, count)
}
