package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/db"
	"postflow/internal/dispatch"
	"postflow/internal/models"
	"postflow/internal/queue"
	"postflow/internal/repository"
	"postflow/internal/secrets"
)

const (
	testAPIKey = "test-key"
	testBoxKey = "0000000000000000000000000000000000000000000000000000000000000000"
)

type apiFixture struct {
	server   *Server
	accounts *repository.AccountRepository
	jobs     *repository.JobRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dir := t.TempDir()
	database, err := db.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	box, err := secrets.NewBox(testBoxKey)
	if err != nil {
		t.Fatalf("secrets.NewBox() error = %v", err)
	}

	storage, err := queue.NewBoltStorage(filepath.Join(dir, "queue.db"), time.Minute)
	if err != nil {
		t.Fatalf("NewBoltStorage() error = %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	campaigns := repository.NewCampaignRepository(database.DB)
	jobs := repository.NewJobRepository(database.DB)
	accounts := repository.NewAccountRepository(database.DB, box)
	proxies := repository.NewProxyRepository(database.DB, box)
	profiles := repository.NewProfileRepository(database.DB)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := dispatch.NewDispatcher(campaigns, jobs,
		dispatch.NewAllocator(accounts), dispatch.NewDistributor(), storage, logger)

	server := NewServer(Repositories{
		Campaigns: campaigns,
		Jobs:      jobs,
		Accounts:  accounts,
		Proxies:   proxies,
		Profiles:  profiles,
	}, dispatcher, storage, &config.APIConfig{ListenAddr: ":0", APIKey: testAPIKey}, logger)

	return &apiFixture{server: server, accounts: accounts, jobs: jobs}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body error = %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	return v
}

func campaignBody() CampaignRequest {
	return CampaignRequest{
		Name:      "launch",
		VideoPath: "/videos/launch.mp4",
		Selection: models.SelectionPolicy{Strategy: models.StrategyAll},
	}
}

func TestHealthNoAuth(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" {
		t.Errorf("health status = %s, want ok", resp.Status)
	}
	if resp.Queue == nil {
		t.Error("health response missing queue stats")
	}
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	// No key
	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d, want 401", rec.Code)
	}

	// Wrong key
	req = httptest.NewRequest(http.MethodGet, "/api/v1/campaigns", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key = %d, want 401", rec.Code)
	}

	// X-API-Key header works too
	req = httptest.NewRequest(http.MethodGet, "/api/v1/campaigns", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec = httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("X-API-Key = %d, want 200", rec.Code)
	}
}

func TestCampaignCRUD(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/campaigns", campaignBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Campaign](t, rec)
	if created.Status != models.CampaignDraft {
		t.Errorf("created status = %s, want draft", created.Status)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/campaigns/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	body := campaignBody()
	body.Name = "relaunch"
	rec = f.request(t, http.MethodPut, "/api/v1/campaigns/"+created.ID, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decode[models.Campaign](t, rec)
	if updated.Name != "relaunch" {
		t.Errorf("updated name = %s, want relaunch", updated.Name)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/campaigns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	list := decode[[]models.Campaign](t, rec)
	if len(list) != 1 {
		t.Errorf("list returned %d campaigns, want 1", len(list))
	}

	rec = f.request(t, http.MethodDelete, "/api/v1/campaigns/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete = %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/campaigns/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
}

func TestCampaignCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	body := campaignBody()
	body.Name = ""
	rec := f.request(t, http.MethodPost, "/api/v1/campaigns", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create without name = %d, want 400", rec.Code)
	}

	body = campaignBody()
	body.Selection.Strategy = "coin_flip"
	rec = f.request(t, http.MethodPost, "/api/v1/campaigns", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create with unknown strategy = %d, want 400", rec.Code)
	}
}

func TestCampaignStartLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	account := &models.Account{Email: "user@example.com", Password: "secret"}
	if err := f.accounts.Create(account); err != nil {
		t.Fatalf("accounts.Create() error = %v", err)
	}

	rec := f.request(t, http.MethodPost, "/api/v1/campaigns", campaignBody())
	created := decode[models.Campaign](t, rec)

	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d, body %s", rec.Code, rec.Body.String())
	}
	result := decode[dispatch.StartResult](t, rec)
	if result.JobsCreated != 1 {
		t.Errorf("jobs_created = %d, want 1", result.JobsCreated)
	}

	// Running campaigns reject updates and deletes
	rec = f.request(t, http.MethodPut, "/api/v1/campaigns/"+created.ID, campaignBody())
	if rec.Code != http.StatusConflict {
		t.Errorf("update running = %d, want 409", rec.Code)
	}
	rec = f.request(t, http.MethodDelete, "/api/v1/campaigns/"+created.ID, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete running = %d, want 409", rec.Code)
	}

	// Second start conflicts
	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/pause", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause = %d", rec.Code)
	}
	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/resume", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume = %d", rec.Code)
	}
	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel = %d", rec.Code)
	}
	result2 := decode[dispatch.CancelResult](t, rec)
	if result2.JobsCancelled != 1 {
		t.Errorf("jobs_cancelled = %d, want 1", result2.JobsCancelled)
	}
}

func TestCampaignStartWithoutAccounts(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/campaigns", campaignBody())
	created := decode[models.Campaign](t, rec)

	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("start without accounts = %d, want 409", rec.Code)
	}
}

func TestCampaignTransitionsMissing(t *testing.T) {
	f := newAPIFixture(t)

	for _, action := range []string{"start", "pause", "resume", "cancel"} {
		rec := f.request(t, http.MethodPost, "/api/v1/campaigns/missing/"+action, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s missing campaign = %d, want 404", action, rec.Code)
		}
	}
}

func TestAccountEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/accounts", AccountRequest{
		Email:    "user@example.com",
		Password: "secret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Account](t, rec)
	if created.Status != models.AccountActive {
		t.Errorf("created status = %s, want active", created.Status)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/accounts", AccountRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create without email = %d, want 400", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/accounts/"+created.ID+"/test", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("test account = %d, want 202", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/accounts/missing/test", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("test missing account = %d, want 404", rec.Code)
	}
}

func TestProxyEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/proxies", ProxyRequest{
		Host: "10.0.0.1",
		Port: 8080,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create proxy = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Proxy](t, rec)

	rec = f.request(t, http.MethodPost, "/api/v1/proxies", ProxyRequest{Host: "10.0.0.2", Port: 99999})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create with bad port = %d, want 400", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/proxies/"+created.ID+"/check", nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("check proxy = %d, want 202", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/proxies/check-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check-all = %d", rec.Code)
	}
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodPost, "/api/v1/profiles", ProfileRequest{
		Name:      "desktop-chrome",
		UserAgent: "Mozilla/5.0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decode[models.Profile](t, rec)

	rec = f.request(t, http.MethodGet, "/api/v1/profiles/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get profile = %d", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/api/v1/profiles", ProfileRequest{Name: "incomplete"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("create without user_agent = %d, want 400", rec.Code)
	}
}

func TestJobEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	account := &models.Account{Email: "user@example.com", Password: "secret"}
	if err := f.accounts.Create(account); err != nil {
		t.Fatalf("accounts.Create() error = %v", err)
	}

	rec := f.request(t, http.MethodPost, "/api/v1/campaigns", campaignBody())
	created := decode[models.Campaign](t, rec)
	rec = f.request(t, http.MethodPost, "/api/v1/campaigns/"+created.ID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/jobs?campaign_id="+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list jobs = %d", rec.Code)
	}
	jobs := decode[[]models.Job](t, rec)
	if len(jobs) != 1 {
		t.Fatalf("list returned %d jobs, want 1", len(jobs))
	}

	rec = f.request(t, http.MethodGet, "/api/v1/jobs/"+jobs[0].ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get job = %d", rec.Code)
	}

	// Pending jobs are not retryable
	rec = f.request(t, http.MethodPost, "/api/v1/jobs/"+jobs[0].ID+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("retry pending job = %d, want 409", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/api/v1/jobs/statistics?campaign_id="+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("job statistics = %d", rec.Code)
	}
	stats := decode[models.JobStats](t, rec)
	if stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v, want 1 pending", stats)
	}
}

func TestDashboardAndActivity(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/stats/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.request(t, http.MethodGet, "/api/v1/stats/activity", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("activity = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestQueueStatsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(t, http.MethodGet, "/api/v1/queue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("queue stats = %d", rec.Code)
	}
	stats := decode[queue.Stats](t, rec)
	if stats.Total != 0 {
		t.Errorf("queue total = %d, want 0", stats.Total)
	}
}
