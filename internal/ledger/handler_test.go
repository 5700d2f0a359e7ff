package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	handler := NewHandler(nil, f.svc)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return f, r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandlerCreateTransaction(t *testing.T) {
	f, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/"+f.productID.String()+"/transactions",
		`{"type":"IN","qty":25,"reason":"receiving"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data struct {
			Type     string `json:"type"`
			Bucket   string `json:"bucket"`
			QtyDelta int64  `json:"qty_delta"`
		} `json:"data"`
		Stock struct {
			Available int64 `json:"available"`
			OnHand    int64 `json:"on_hand"`
			Reserved  int64 `json:"reserved"`
		} `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "IN", body.Data.Type)
	require.Equal(t, "ON_HAND", body.Data.Bucket)
	require.Equal(t, int64(25), body.Data.QtyDelta)
	require.Equal(t, int64(25), body.Stock.Available)
}

func TestHandlerRejectsSignedQty(t *testing.T) {
	f, router := newTestRouter(t)

	// Clients can not smuggle a sign; the server derives it.
	rec := doJSON(t, router, http.MethodPost, "/"+f.productID.String()+"/transactions",
		`{"type":"IN","qty":-5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestHandlerShortfallConflict(t *testing.T) {
	f, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/"+f.productID.String()+"/transactions",
		`{"type":"OUT","qty":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INSUFFICIENT_ON_HAND", errorCode(t, rec))
}

func TestHandlerUnknownProduct(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/a2f7c6de-9a34-4ae9-b6a1-0e6f3ac9d315/transactions",
		`{"type":"IN","qty":1}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "PRODUCT_NOT_FOUND", errorCode(t, rec))
}

func TestHandlerBatchAtomicRejection(t *testing.T) {
	f, router := newTestRouter(t)
	base := "/" + f.productID.String()

	rec := doJSON(t, router, http.MethodPost, base+"/transactions", `{"type":"IN","qty":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/transactions/batch",
		`{"transactions":[{"type":"OUT","qty":5},{"type":"OUT","qty":6}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "INSUFFICIENT_ON_HAND", errorCode(t, rec))

	// Nothing from the rejected batch shows up in stock.
	rec = doJSON(t, router, http.MethodGet, base+"/stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stock struct {
		Data struct {
			OnHand int64 `json:"on_hand"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stock))
	require.Equal(t, int64(10), stock.Data.OnHand)
}

func TestHandlerBatchSizeLimit(t *testing.T) {
	f, router := newTestRouter(t)

	var ops []string
	for i := 0; i < 11; i++ {
		ops = append(ops, `{"type":"IN","qty":1}`)
	}
	rec := doJSON(t, router, http.MethodPost, "/"+f.productID.String()+"/transactions/batch",
		`{"transactions":[`+strings.Join(ops, ",")+`]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestHandlerDuplicateRequestID(t *testing.T) {
	f, router := newTestRouter(t)
	path := "/" + f.productID.String() + "/transactions"
	body := `{"type":"IN","qty":5,"request_id":"3d9ee137-28c1-41f5-b27a-23a1f9d6e1ab"}`

	rec := doJSON(t, router, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, path, body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "DUPLICATE_REQUEST_ID", errorCode(t, rec))
}

func TestHandlerInactiveProduct(t *testing.T) {
	f, router := newTestRouter(t)
	f.svc.products.(*stubProducts).states[f.productID] = ProductState{Exists: true, Active: false}

	rec := doJSON(t, router, http.MethodPost, "/"+f.productID.String()+"/transactions",
		`{"type":"IN","qty":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "PRODUCT_INACTIVE", errorCode(t, rec))
}

func TestHandlerListTransactions(t *testing.T) {
	f, router := newTestRouter(t)
	base := "/" + f.productID.String()

	doJSON(t, router, http.MethodPost, base+"/transactions", `{"type":"IN","qty":10}`)
	doJSON(t, router, http.MethodPost, base+"/transactions", `{"type":"RESERVE","qty":3}`)

	rec := doJSON(t, router, http.MethodGet, base+"/transactions?bucket=RESERVED", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			Type string `json:"type"`
		} `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Pagination.Total)
	require.Equal(t, "RESERVE", body.Data[0].Type)
}
