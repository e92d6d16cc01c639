package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"recargas/internal/auth"
	"recargas/internal/core"
	"recargas/internal/services"
	"recargas/internal/storage/memory"
)

type testEnv struct {
	srv       *Server
	store     *memory.Store
	accounts  *services.AccountService
	recharges *services.RechargeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memory.New()
	accounts := services.NewAccountService(st, auth.NewTokenService("test-secret", time.Hour))
	recharges := services.NewRechargeService(st, nil, nil)
	srv := NewServer(":0", Deps{
		Recharges: recharges,
		Accounts:  accounts,
		Contacts:  st,
		Health:    st,
	}, Options{RateLimit: 1000})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: st, accounts: accounts, recharges: recharges}
}

// user creates an account and returns it with a session token.
func (e *testEnv) user(t *testing.T, username string, staff bool) (core.User, string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.accounts.CreateUser(ctx, core.User{Username: username, IsStaff: staff}, "segredo123")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, token, err := e.accounts.Login(ctx, username, "segredo123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return u, token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	return req
}

func postForm(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (e *testEnv) addRecharge(t *testing.T, userID int64, location string, day int) int64 {
	t.Helper()
	id, err := e.recharges.CreateRecharge(context.Background(), core.Recharge{
		UserID:   userID,
		Date:     time.Date(2025, 1, day, 10, 0, 0, 0, time.UTC),
		KWh:      20,
		Cost:     30,
		Odometer: float64(1000 + day*100),
		Location: location,
	})
	if err != nil {
		t.Fatalf("create recharge: %v", err)
	}
	return id
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%s", path, rr.Code, rr.Body.String())
		}
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	for _, name := range []string{"http_requests_total", "report_cache_hits_total", "rate_limit_hits_total", "logins_total"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "ana", false)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/login/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `name="username"`) {
		t.Fatalf("login page status=%d", rr.Code)
	}

	rr = env.do(postForm("/login/", "username=ana&password=errada"))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Usuário ou senha inválidos.") {
		t.Fatalf("bad password: status=%d", rr.Code)
	}

	rr = env.do(postForm("/login/", "username=ana&password=segredo123&next=%2Fhistory%2F"))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/history/" {
		t.Fatalf("Location = %q", loc)
	}
	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" || !session.HttpOnly {
		t.Fatalf("session cookie not set: %+v", session)
	}

	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/history/", nil), session.Value))
	if rr.Code != http.StatusOK {
		t.Fatalf("history with session status=%d", rr.Code)
	}
}

func TestLoginRejectsExternalNext(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "ana", false)

	rr := env.do(postForm("/login/", "username=ana&password=segredo123&next=%2F%2Fevil.example"))
	if loc := rr.Header().Get("Location"); loc != "/dashboard/" {
		t.Fatalf("Location = %q, want /dashboard/", loc)
	}
}

func TestRequireLoginRedirects(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/history/", "/dashboard/", "/recharge/", "/settings/"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusSeeOther {
			t.Fatalf("%s status=%d, want 303", path, rr.Code)
		}
		if loc := rr.Header().Get("Location"); !strings.HasPrefix(loc, "/login/?next=") {
			t.Fatalf("%s Location = %q", path, loc)
		}
	}
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(postForm("/register/", "username=bia&email=bia%40example.com&nome=Bia&password1=segredo123&password2=outra"))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "As senhas não conferem.") {
		t.Fatalf("mismatch: status=%d", rr.Code)
	}

	rr = env.do(postForm("/register/", "username=bia&email=bia%40example.com&nome=Bia&password1=segredo123&password2=segredo123"))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login/" {
		t.Fatalf("register status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
	if _, _, err := env.accounts.Login(context.Background(), "bia", "segredo123"); err != nil {
		t.Fatalf("registered user cannot log in: %v", err)
	}
}

func TestCreateRechargeAndHistory(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.user(t, "ana", false)

	rr := env.do(withSession(httptest.NewRequest(http.MethodGet, "/recharge/", nil), token))
	if rr.Code != http.StatusOK {
		t.Fatalf("form status=%d", rr.Code)
	}

	rr = env.do(withSession(postForm("/recharge/", "data=2025-02-10T19%3A00&kwh=abc&custo=10&odometro=100"), token))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid kwh status=%d", rr.Code)
	}

	rr = env.do(withSession(postForm("/recharge/", "data=2025-02-10T19%3A00&kwh=15%2C5&custo=42&odometro=1500&local=Shopping+Norte"), token))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/dashboard/" {
		t.Fatalf("create status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/history/?local=norte", nil), token))
	if rr.Code != http.StatusOK {
		t.Fatalf("history status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Shopping Norte") {
		t.Fatal("history missing created recharge")
	}

	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/history/?local=praia", nil), token))
	if strings.Contains(rr.Body.String(), "Shopping Norte") {
		t.Fatal("location filter not applied")
	}
}

func TestHistoryCSVExport(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "ana", false)
	env.addRecharge(t, u.ID, "Casa", 5)

	rr := env.do(withSession(httptest.NewRequest(http.MethodGet, "/history/?export=csv", nil), token))
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "Data,Local,kWh") || !strings.Contains(lines[1], "Casa") {
		t.Fatalf("unexpected export:\n%s", rr.Body.String())
	}
}

func TestHistoryIsolatedPerUser(t *testing.T) {
	env := newTestEnv(t)
	ana, _ := env.user(t, "ana", false)
	_, bobToken := env.user(t, "bob", false)
	env.addRecharge(t, ana.ID, "Casa da Ana", 3)

	rr := env.do(withSession(httptest.NewRequest(http.MethodGet, "/history/", nil), bobToken))
	if strings.Contains(rr.Body.String(), "Casa da Ana") {
		t.Fatal("history leaked another user's recharge")
	}
}

func TestEditRecharge(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "ana", false)
	id := env.addRecharge(t, u.ID, "Casa", 4)
	path := "/edit-recharge/" + strconv.FormatInt(id, 10) + "/"

	rr := env.do(withSession(httptest.NewRequest(http.MethodGet, path, nil), token))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Casa") {
		t.Fatalf("edit form status=%d", rr.Code)
	}

	rr = env.do(withSession(postForm(path, "data=2025-01-04T10%3A00&kwh=22&custo=0&odometro=1400&isento=on&local=Trabalho"), token))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("edit status=%d body=%s", rr.Code, rr.Body.String())
	}
	got, err := env.recharges.GetRecharge(context.Background(), u.ID, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.KWh != 22 || !got.Exempt || got.Location != "Trabalho" {
		t.Fatalf("recharge not updated: %+v", got)
	}

	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/edit-recharge/999/", nil), token))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/history/" {
		t.Fatalf("missing recharge status=%d", rr.Code)
	}
}

func TestDeleteRechargeHTMX(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "ana", false)
	id := env.addRecharge(t, u.ID, "Casa", 2)
	path := "/delete-recharge/" + strconv.FormatInt(id, 10) + "/"

	req := withSession(httptest.NewRequest(http.MethodPost, path, nil), token)
	req.Header.Set("HX-Request", "true")
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if trig := rr.Header().Get("HX-Trigger"); !strings.Contains(trig, "recharge:deleted") {
		t.Fatalf("HX-Trigger = %q", trig)
	}

	req = withSession(httptest.NewRequest(http.MethodPost, path, nil), token)
	req.Header.Set("HX-Request", "true")
	if rr := env.do(req); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d, want 404", rr.Code)
	}
}

func TestDeleteAllRecharges(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "ana", false)
	env.addRecharge(t, u.ID, "A", 1)
	env.addRecharge(t, u.ID, "B", 2)

	rr := env.do(withSession(httptest.NewRequest(http.MethodPost, "/delete-all-recharges/", nil), token))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/settings/" {
		t.Fatalf("delete all status=%d", rr.Code)
	}
	recs, err := env.recharges.AllRecharges(context.Background(), u.ID, core.RechargeFilter{})
	if err != nil || len(recs) != 0 {
		t.Fatalf("recharges left: %d, err=%v", len(recs), err)
	}
}

func TestSettingsAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "ana", false)
	env.addRecharge(t, u.ID, "Casa", 1)
	env.addRecharge(t, u.ID, "Casa", 20)

	rr := env.do(withSession(postForm("/settings/", "preco_gasolina=-1&consumo_km_l=12"), token))
	if rr.Code == http.StatusSeeOther {
		t.Fatal("negative fuel price accepted")
	}

	rr = env.do(withSession(postForm("/settings/", "preco_gasolina=6%2C29&consumo_km_l=12"), token))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("settings status=%d", rr.Code)
	}
	cfg, err := env.recharges.Settings(context.Background(), u.ID)
	if err != nil || cfg == nil || cfg.FuelPrice != 6.29 || cfg.FuelEconomy != 12 {
		t.Fatalf("settings not saved: %+v, %v", cfg, err)
	}

	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/dashboard/", nil), token))
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "2025-01") {
		t.Fatal("dashboard missing monthly row")
	}

	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/api/recharges/monthly/", nil), token))
	if rr.Code != http.StatusOK {
		t.Fatalf("monthly status=%d", rr.Code)
	}
	var rep struct {
		Labels []string `json:"labels"`
		KPIs   struct {
			Recharges int `json:"recargas"`
		} `json:"kpis"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Labels) != 1 || rep.KPIs.Recharges != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func multipartUpload(t *testing.T, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "recargas.csv")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/bulk-recharge/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestBulkUpload(t *testing.T) {
	env := newTestEnv(t)
	u, token := env.user(t, "ana", false)

	bad := "data,kwh,custo,isento,odometro\n2025-01-01,abc,1,não,1000\n"
	rr := env.do(withSession(multipartUpload(t, bad), token))
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Linha 2") {
		t.Fatalf("invalid file: status=%d body=%s", rr.Code, rr.Body.String())
	}

	good := "data,kwh,custo,isento,odometro,local\n" +
		"2025-01-01 08:00,10,20,não,1000,Casa\n" +
		"2025-01-08 08:00,12,0,sim,1200,Shopping\n"
	rr = env.do(withSession(multipartUpload(t, good), token))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/history/" {
		t.Fatalf("valid file: status=%d body=%s", rr.Code, rr.Body.String())
	}
	recs, err := env.recharges.AllRecharges(context.Background(), u.ID, core.RechargeFilter{})
	if err != nil || len(recs) != 2 {
		t.Fatalf("imported %d recharges, err=%v", len(recs), err)
	}

	req := withSession(httptest.NewRequest(http.MethodPost, "/bulk-recharge/", strings.NewReader("")), token)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	if rr := env.do(req); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing file status=%d", rr.Code)
	}
}

func TestAdminRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.user(t, "ana", false)
	_, staffToken := env.user(t, "root", true)

	rr := env.do(withSession(httptest.NewRequest(http.MethodGet, "/admin/users/", nil), userToken))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-staff status=%d", rr.Code)
	}
	rr = env.do(withSession(httptest.NewRequest(http.MethodGet, "/admin/users/", nil), staffToken))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ana") {
		t.Fatalf("staff status=%d", rr.Code)
	}
}

func TestContactForm(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(postForm("/contact-us/", "nome=&email=invalido&mensagem=oi"))
	if rr.Code != http.StatusOK {
		t.Fatalf("invalid contact status=%d", rr.Code)
	}
	rr = env.do(postForm("/contact-us/", "nome=Ana&email=ana%40example.com&mensagem=Gostei+do+app"))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("contact status=%d", rr.Code)
	}
	msgs, err := env.store.ListContacts(context.Background(), 10)
	if err != nil || len(msgs) != 1 || msgs[0].Status != core.ContactStatusSent {
		t.Fatalf("contact not stored: %+v, %v", msgs, err)
	}
}

func apiRequest(method, path, body, token string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAPI(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "ana", false)
	_, bobToken := env.user(t, "bob", false)

	if rr := env.do(apiRequest(http.MethodGet, "/api/recharges/", "", "")); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status=%d", rr.Code)
	}

	rr := env.do(apiRequest(http.MethodPost, "/api/login/", `{"username":"ana","password":"errada"}`, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status=%d", rr.Code)
	}

	rr = env.do(apiRequest(http.MethodPost, "/api/login/", `{"username":"ana","password":"segredo123"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d", rr.Code)
	}
	var login apiStatus
	if err := json.NewDecoder(rr.Body).Decode(&login); err != nil || login.Token == "" || login.Status != "success" {
		t.Fatalf("login body: %+v, %v", login, err)
	}
	token := login.Token

	rr = env.do(apiRequest(http.MethodPost, "/api/recharges/", `{"data":"2025-03-01T10:00","kwh":11,"custo":22,"odometro":3000,"local":"Casa"}`, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created apiStatus
	_ = json.NewDecoder(rr.Body).Decode(&created)
	if created.ID == 0 {
		t.Fatal("created id missing")
	}
	item := "/api/recharges/" + strconv.FormatInt(created.ID, 10) + "/"

	rr = env.do(apiRequest(http.MethodPost, "/api/recharges/", `{"data":"2025-03-01T10:00","kwh":-1,"custo":1,"odometro":1}`, token))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative kwh status=%d", rr.Code)
	}

	rr = env.do(apiRequest(http.MethodPut, item, `{"custo": 30.5}`, token))
	if rr.Code != http.StatusOK {
		t.Fatalf("put status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(apiRequest(http.MethodGet, item, "", token))
	var got rechargeJSON
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Cost != 30.5 || got.KWh != 11 || got.Location != "Casa" {
		t.Fatalf("merge result: %+v", got)
	}

	if rr := env.do(apiRequest(http.MethodGet, item, "", bobToken)); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign recharge status=%d", rr.Code)
	}

	rr = env.do(apiRequest(http.MethodGet, "/api/recharges/", "", token))
	var list []rechargeJSON
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil || len(list) != 1 {
		t.Fatalf("list: %d items, %v", len(list), err)
	}

	rr = env.do(apiRequest(http.MethodGet, "/api/settings/", "", token))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"preco_gasolina":0`) {
		t.Fatalf("settings status=%d body=%s", rr.Code, rr.Body.String())
	}

	if rr := env.do(apiRequest(http.MethodDelete, item, "", token)); rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := env.do(apiRequest(http.MethodGet, item, "", token)); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted recharge status=%d", rr.Code)
	}

	if rr := env.do(apiRequest(http.MethodPatch, item, "", token)); rr.Code != http.StatusNotFound {
		// deleted: lookup fails before the method check
		t.Fatalf("patch on deleted status=%d", rr.Code)
	}
}

func TestAPICORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/recharges/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := env.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("preflight status=%d", rr.Code)
	}
	h := rr.Header()
	if h.Get("Access-Control-Allow-Origin") != "https://app.example.com" || h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("CORS headers: %v", h)
	}
	if !strings.Contains(h.Get("Access-Control-Allow-Methods"), "PUT") {
		t.Fatalf("Allow-Methods = %q", h.Get("Access-Control-Allow-Methods"))
	}
}

func TestSecurityHeadersAndBlockedProbe(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/login/", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", rr.Header())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/wp-admin/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("probe status=%d", rr.Code)
	}
}
