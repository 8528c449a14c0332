package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codecanvas/internal/records"
)

// newTestClient points a Client at handler and returns both.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", ProjectID: "proj1", PublicKey: "pk_test"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresCoordinates(t *testing.T) {
	_, err := New(Config{ProjectID: "p"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://api.example.com"})
	assert.Error(t, err)
}

func TestFetchRecords_SendsDescriptor(t *testing.T) {
	var got records.Query
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/proj1/tables/pen_c/fetch", r.URL.Path)
		assert.Equal(t, "pk_test", r.Header.Get(HeaderPublicKey))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[{"Id":3,"title_c":"Grid","likes_c":4}]}`))
	})

	q := records.Query{
		Fields:  []string{"Id", "title_c"},
		Where:   []records.Condition{records.Contains("title_c", "grid")},
		OrderBy: []records.OrderBy{{FieldName: "ModifiedOn", SortType: records.SortDesc}},
		Paging:  &records.Paging{Limit: 50},
	}
	resp, err := c.FetchRecords(context.Background(), "pen_c", q)
	require.NoError(t, err)

	assert.Equal(t, q, got)
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, int64(3), resp.Data[0].ID())
	assert.Equal(t, json.Number("4"), resp.Data[0]["likes_c"])
}

func TestIncrementField_Body(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/proj1/tables/pen_c/increment", r.URL.Path)
		var body incrementRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, incrementRequest{ID: 9, Field: "views_c", Delta: 1}, body)
		w.Write([]byte(`{"success":true,"data":{"Id":9,"views_c":12}}`))
	})

	resp, err := c.IncrementField(context.Background(), "pen_c", 9, "views_c", 1)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, json.Number("12"), resp.Data["views_c"])
}

func TestDeleteRecord_PerRecordResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body deleteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int64{1, 2}, body.RecordIDs)
		w.Write([]byte(`{"success":true,"results":[{"success":true},{"success":false,"message":"not yours"}]}`))
	})

	resp, err := c.DeleteRecord(context.Background(), "pen_c", []int64{1, 2})
	require.NoError(t, err)

	ok, failed := resp.Split()
	assert.Len(t, ok, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "not yours", failed[0].Message)
}

func TestNon2xxBecomesRefusal(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"backend message", http.StatusBadRequest, `{"success":false,"message":"unknown field"}`, "unknown field"},
		{"no body", http.StatusServiceUnavailable, ``, "get pen_c: Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			resp, err := c.GetRecordByID(context.Background(), "pen_c", 1, records.Query{})
			require.NoError(t, err)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}

func TestMalformedJSONIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":tru`))
	})

	_, err := c.CreateRecord(context.Background(), "pen_c", []records.Record{{"title_c": "x"}})
	assert.Error(t, err)
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := New(Config{BaseURL: srv.URL, ProjectID: "p"})
	require.NoError(t, err)

	_, err = c.FetchRecords(context.Background(), "pen_c", records.Query{})
	assert.Error(t, err)
}
