package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/loandocs/internal/access"
	"github.com/and161185/loandocs/internal/errs"
	"github.com/and161185/loandocs/internal/model"
	"github.com/and161185/loandocs/internal/service"
)

var (
	adminUser = model.User{ID: uuid.Must(uuid.NewV4()), Username: "root", Role: model.RoleAdmin, Active: true}
	opUser    = model.User{ID: uuid.Must(uuid.NewV4()), Username: "oper", Role: model.RoleOperator, Active: true}
)

/************ fakes ************/
// Each fake embeds its interface; methods a test does not override panic.

type fakeAuth struct {
	service.AuthService
	loginErr error
	lastIP   string
}

func (f *fakeAuth) Authenticate(_ context.Context, tok string) (model.User, error) {
	switch tok {
	case "admin":
		return adminUser, nil
	case "op":
		return opUser, nil
	}
	return model.User{}, errs.ErrUnauthorized
}
func (f *fakeAuth) LoginWithIP(_ context.Context, username, _ string, ip string) (model.Tokens, model.User, error) {
	f.lastIP = ip
	if f.loginErr != nil {
		return model.Tokens{}, model.User{}, f.loginErr
	}
	return model.Tokens{AccessToken: "jwt-" + username, ExpiresAt: time.Now().Add(time.Hour)}, opUser, nil
}

type fakeOrders struct {
	service.OrderService
	err        error
	lastNew    model.NewOrder
	lastFilter model.OrderFilter
}

func (f *fakeOrders) Create(_ context.Context, p access.Principal, in model.NewOrder) (model.Order, error) {
	f.lastNew = in
	u, _ := p.User()
	return model.Order{ID: uuid.Must(uuid.NewV4()), Number: "ORD20260504ABCDEF01", CustomerName: in.CustomerName, Status: model.StatusInProgress, CreatorID: u.ID}, f.err
}
func (f *fakeOrders) Get(_ context.Context, _ access.Principal, id uuid.UUID) (model.Order, error) {
	return model.Order{ID: id}, f.err
}
func (f *fakeOrders) List(_ context.Context, _ access.Principal, fl model.OrderFilter) (model.OrderPage, error) {
	f.lastFilter = fl
	return model.OrderPage{Items: []model.Order{{Number: "ORD1"}}, Total: 1, Page: 1, Size: 20}, f.err
}
func (f *fakeOrders) Delete(context.Context, access.Principal, uuid.UUID) error { return f.err }

type fakeArtifacts struct {
	service.ArtifactService
	mu      sync.Mutex
	calls   int
	last    service.SubmitInput
	lastOrd uuid.UUID
	body    string
	content string
}

func (f *fakeArtifacts) Submit(_ context.Context, p access.Principal, orderID uuid.UUID, in service.SubmitInput) (model.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last, f.lastOrd = in, orderID
	a := model.Artifact{ID: uuid.Must(uuid.NewV4()), OrderID: orderID, MaterialItemID: in.MaterialItemID}
	if in.File != nil {
		b, _ := io.ReadAll(in.File.Body)
		f.body = string(b)
		a.Payload = model.BinaryPayload{Name: in.File.Name, Size: int64(len(b)), FileKind: service.KindOf(".pdf")}
	} else {
		a.Payload = model.TextPayload{Content: *in.Text}
	}
	return a, nil
}
func (f *fakeArtifacts) List(context.Context, access.Principal, uuid.UUID) ([]model.Artifact, error) {
	return nil, nil
}
func (f *fakeArtifacts) Open(_ context.Context, _ access.Principal, id uuid.UUID) (model.Artifact, io.ReadCloser, error) {
	a := model.Artifact{ID: id, Payload: model.BinaryPayload{Name: "contract.pdf", Size: int64(len(f.content)), FileKind: model.KindDocument}}
	return a, io.NopCloser(strings.NewReader(f.content)), nil
}

type fakeCollab struct {
	service.CollabService
	res        model.Resolution
	resolveErr error
}

func (f *fakeCollab) Resolve(_ context.Context, token string) (model.Resolution, error) {
	if f.resolveErr != nil {
		return model.Resolution{}, f.resolveErr
	}
	if token != f.res.Token.Token {
		return model.Resolution{}, errs.ErrNotFound
	}
	return f.res, nil
}
func (f *fakeCollab) Mint(_ context.Context, _ access.Principal, orderID uuid.UUID) (model.CollabLink, error) {
	return model.CollabLink{Token: model.CollabToken{OrderID: orderID, Token: "abc", ExpiresAt: time.Now().Add(time.Hour)}, URL: "http://x/collaborate/abc", Reused: true}, nil
}

type fakeMaterials struct {
	service.MaterialService
}

func (fakeMaterials) ChecklistForOrder(_ context.Context, p access.Principal, o *model.Order) ([]model.ChecklistCategory, error) {
	if err := access.NewGuard(nil, nil).Check(p, access.ActionReadOrder, o); err != nil {
		return nil, err
	}
	return []model.ChecklistCategory{{Category: model.MaterialCategory{Name: "Identity", Active: true}}}, nil
}
func (fakeMaterials) CreateCategory(_ context.Context, _ access.Principal, name string, sortOrder int) (model.MaterialCategory, error) {
	return model.MaterialCategory{ID: uuid.Must(uuid.NewV4()), Name: name, SortOrder: sortOrder, Active: true}, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+route)
}

/************ helpers ************/

type testEnv struct {
	srv       *httptest.Server
	auth      *fakeAuth
	orders    *fakeOrders
	artifacts *fakeArtifacts
	collab    *fakeCollab
	obs       *recordingObserver
	readyErr  error
}

func newEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	e := &testEnv{
		auth:      &fakeAuth{},
		orders:    &fakeOrders{},
		artifacts: &fakeArtifacts{},
		collab:    &fakeCollab{},
		obs:       &recordingObserver{},
	}
	s := New(Deps{
		Auth:           e.auth,
		Orders:         e.orders,
		Materials:      fakeMaterials{},
		Artifacts:      e.artifacts,
		Collab:         e.collab,
		Ready:          func(context.Context) error { return e.readyErr },
		Metrics:        http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics") }),
		Observer:       e.obs,
		MaxUploadBytes: maxUpload,
		Log:            zaptest.NewLogger(t),
	})
	e.srv = httptest.NewServer(s.Handler())
	t.Cleanup(e.srv.Close)
	return e
}

type reply struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, token, contentType string, body io.Reader) (int, reply) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var rep reply
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &rep)
	return resp.StatusCode, rep
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, v any) (int, reply) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, method, path, token, "application/json", bytes.NewReader(b))
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, file []byte) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

/************ tests ************/

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	st, rep := e.do(t, http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, st)
	require.True(t, rep.Success)

	e.readyErr = errors.New("db down")
	st, _ = e.do(t, http.MethodGet, "/readyz", "", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, st)

	resp, err := e.srv.Client().Get(e.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireUser(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	st, rep := e.do(t, http.MethodGet, "/api/orders", "", "", nil)
	require.Equal(t, http.StatusUnauthorized, st)
	require.False(t, rep.Success)
	require.Equal(t, errs.CodeUnauthorized, rep.Code)

	st, _ = e.do(t, http.MethodGet, "/api/orders", "forged", "", nil)
	require.Equal(t, http.StatusUnauthorized, st)

	st, rep = e.do(t, http.MethodGet, "/api/auth/profile", "op", "", nil)
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(rep.Data), `"username":"oper"`)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	st, rep := e.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "oper", "password": "secret1"})
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(rep.Data), `"token":"jwt-oper"`)
	require.Equal(t, "127.0.0.1", e.auth.lastIP)

	st, rep = e.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "oper"})
	require.Equal(t, http.StatusBadRequest, st)
	require.Equal(t, errs.CodeInvalidInput, rep.Code)

	e.auth.loginErr = errs.ErrRateLimited
	st, rep = e.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "oper", "password": "x"})
	require.Equal(t, http.StatusTooManyRequests, st)
	require.Equal(t, errs.CodeRateLimited, rep.Code)

	st, _ = e.do(t, http.MethodPost, "/api/auth/login", "", "application/json", strings.NewReader(`{"username":`))
	require.Equal(t, http.StatusBadRequest, st)
}

func TestOrders_SanitizeAndErrorMapping(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	st, rep := e.doJSON(t, http.MethodPost, "/api/orders", "op", map[string]string{"customerName": "<b>O'Brien</b> & Co"})
	require.Equal(t, http.StatusCreated, st)
	require.Equal(t, "O&#39;Brien &amp; Co", e.orders.lastNew.CustomerName)
	require.Contains(t, string(rep.Data), `"orderNumber":"ORD20260504ABCDEF01"`)

	creator := uuid.Must(uuid.NewV4())
	st, rep = e.do(t, http.MethodGet, "/api/orders?page=2&limit=5&status=completed&search=ORD&creatorId="+creator.String(), "admin", "", nil)
	require.Equal(t, http.StatusOK, st)
	require.Equal(t, model.OrderFilter{CreatorID: creator, Search: "ORD", Status: model.StatusCompleted, Page: 2, Size: 5}, e.orders.lastFilter)
	require.Contains(t, string(rep.Data), `"totalPages":1`)

	st, _ = e.do(t, http.MethodGet, "/api/orders?page=two", "admin", "", nil)
	require.Equal(t, http.StatusBadRequest, st)
	st, _ = e.do(t, http.MethodGet, "/api/orders/not-a-uuid", "admin", "", nil)
	require.Equal(t, http.StatusBadRequest, st)

	cases := []struct {
		err  error
		want int
	}{
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrNotFound, http.StatusNotFound},
		{errs.ErrInvalidState, http.StatusConflict},
		{errors.New("db exploded"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		e.orders.err = c.err
		st, rep = e.do(t, http.MethodDelete, "/api/orders/"+uuid.Must(uuid.NewV4()).String(), "op", "", nil)
		require.Equal(t, c.want, st, "err %v", c.err)
		require.False(t, rep.Success)
	}
	require.Equal(t, "internal error", rep.Message)
}

func TestSubmitArtifact_Multipart(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)
	order := uuid.Must(uuid.NewV4())
	item := uuid.Must(uuid.NewV4())

	ct, body := multipartBody(t, map[string]string{"material_item_id": item.String()}, "contract.pdf", []byte("%PDF-1.7"))
	st, rep := e.do(t, http.MethodPost, "/api/orders/"+order.String()+"/artifacts", "op", ct, body)
	require.Equal(t, http.StatusCreated, st)
	require.Equal(t, order, e.artifacts.lastOrd)
	require.Equal(t, item, e.artifacts.last.MaterialItemID.UUID)
	require.Nil(t, e.artifacts.last.Text)
	require.Equal(t, "%PDF-1.7", e.artifacts.body)
	require.Contains(t, string(rep.Data), `"originalName":"contract.pdf"`)

	// an empty text field next to the file is what browser forms send
	e.artifacts.last = service.SubmitInput{}
	ct, body = multipartBody(t, map[string]string{"text_content": "", "material_item_id": ""}, "scan.pdf", []byte("%PDF-1.4"))
	st, _ = e.do(t, http.MethodPost, "/api/orders/"+order.String()+"/artifacts", "op", ct, body)
	require.Equal(t, http.StatusCreated, st)
	require.NotNil(t, e.artifacts.last.File)
	require.Nil(t, e.artifacts.last.Text)
	require.False(t, e.artifacts.last.MaterialItemID.Valid)

	ct, body = multipartBody(t, map[string]string{"text_content": "employer: ACME", "material_item_id": "nope"}, "", nil)
	st, _ = e.do(t, http.MethodPost, "/api/orders/"+order.String()+"/artifacts", "op", ct, body)
	require.Equal(t, http.StatusBadRequest, st)

	st, _ = e.do(t, http.MethodPost, "/api/orders/"+order.String()+"/artifacts", "op", "text/plain", strings.NewReader("hi"))
	require.Equal(t, http.StatusBadRequest, st)
}

func TestSubmitArtifact_OversizeRejected(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 16)

	big := bytes.Repeat([]byte("x"), multipartOverhead+64)
	ct, body := multipartBody(t, nil, "huge.mp4", big)
	st, rep := e.do(t, http.MethodPost, "/api/orders/"+uuid.Must(uuid.NewV4()).String()+"/artifacts", "op", ct, body)
	require.Equal(t, http.StatusRequestEntityTooLarge, st)
	require.Equal(t, errs.CodePayloadTooLarge, rep.Code)
	require.Zero(t, e.artifacts.calls)
}

func TestCollabRoutes(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)
	o := model.Order{ID: uuid.Must(uuid.NewV4()), Number: "ORD1", CreatorID: opUser.ID, Status: model.StatusInProgress}
	tok := model.CollabToken{ID: uuid.Must(uuid.NewV4()), OrderID: o.ID, Token: "tok123", ExpiresAt: time.Now().Add(time.Hour)}
	e.collab.res = model.Resolution{Order: o, Token: tok, Remaining: time.Hour}

	st, rep := e.do(t, http.MethodGet, "/api/collab/tok123", "", "", nil)
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(rep.Data), `"remainingSeconds":3600`)
	require.Contains(t, string(rep.Data), `"name":"Identity"`)
	require.NotContains(t, string(rep.Data), opUser.ID.String())

	st, _ = e.doJSON(t, http.MethodPost, "/api/collab/tok123/artifacts", "", map[string]string{"textContent": "salary 1000"})
	require.Equal(t, http.StatusCreated, st)
	require.Equal(t, o.ID, e.artifacts.lastOrd)
	require.Equal(t, "salary 1000", *e.artifacts.last.Text)

	st, rep = e.do(t, http.MethodGet, "/api/collab/unknown", "", "", nil)
	require.Equal(t, http.StatusNotFound, st)
	require.Equal(t, errs.CodeNotFound, rep.Code)

	e.collab.resolveErr = errs.ErrExpired
	st, rep = e.do(t, http.MethodGet, "/api/collab/tok123/artifacts", "", "", nil)
	require.Equal(t, http.StatusGone, st)
	require.Equal(t, errs.CodeExpired, rep.Code)

	st, rep = e.do(t, http.MethodPost, "/api/orders/"+o.ID.String()+"/collab", "op", "", nil)
	require.Equal(t, http.StatusOK, st)
	require.Contains(t, string(rep.Data), `"reused":true`)
}

func TestOpenArtifact_Streams(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)
	e.artifacts.content = "%PDF-data"

	resp, err := func() (*http.Response, error) {
		req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/artifacts/"+uuid.Must(uuid.NewV4()).String()+"/content", nil)
		req.Header.Set("Authorization", "Bearer op")
		return e.srv.Client().Do(req)
	}()
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "%PDF-data", string(b))
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), `filename=contract.pdf`)
}

func TestMaterials_CreateCategorySanitized(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	st, rep := e.doJSON(t, http.MethodPost, "/api/materials/categories", "admin", map[string]any{"name": "<i>Income</i>", "sortOrder": 3})
	require.Equal(t, http.StatusCreated, st)
	require.Contains(t, string(rep.Data), `"name":"Income"`)
	require.Contains(t, string(rep.Data), `"sortOrder":3`)

	st, _ = e.doJSON(t, http.MethodPost, "/api/materials/categories", "admin", map[string]any{"name": "x", "bogus": 1})
	require.Equal(t, http.StatusBadRequest, st)
}

func TestInstrument_RecordsRoutePattern(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	_, _ = e.do(t, http.MethodGet, "/api/orders/"+uuid.Must(uuid.NewV4()).String(), "admin", "", nil)
	e.obs.mu.Lock()
	defer e.obs.mu.Unlock()
	require.Contains(t, e.obs.routes, "GET /api/orders/{id}")
}

func TestClean_KeepsMarkupInert(t *testing.T) {
	t.Parallel()
	s := New(Deps{})

	cases := map[string]string{
		"<script>alert(1)</script>Li":          "Li",
		"&lt;script&gt;alert(1)&lt;/script&gt;": "&lt;script&gt;alert(1)&lt;/script&gt;",
		"<b>Income</b>":                        "Income",
		"a &amp; b":                            "a &amp; b",
		"plain":                                "plain",
	}
	for in, want := range cases {
		got := s.clean(in)
		require.Equal(t, want, got, "input %q", in)
		require.NotContains(t, got, "<")
	}
	require.Nil(t, s.cleanPtr(nil))
}

func TestEnvelope_MessageAlwaysPresent(t *testing.T) {
	t.Parallel()
	e := newEnv(t, 1<<20)

	resp, err := func() (*http.Response, error) {
		req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/orders", nil)
		req.Header.Set("Authorization", "Bearer op")
		return e.srv.Client().Do(req)
	}()
	require.NoError(t, err)
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	require.Contains(t, raw, "message")
	require.Contains(t, raw, "success")
	require.Contains(t, raw, "timestamp")
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	require.Equal(t, http.StatusRequestEntityTooLarge, StatusOf(errs.ErrPayloadTooLarge))
	require.Equal(t, http.StatusGone, StatusOf(errs.ErrExpired))
	require.Equal(t, http.StatusConflict, StatusOf(errs.ErrAlreadyExists))
	require.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("x")))
}
