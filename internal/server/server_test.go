package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fundpool/fundpool/internal/accounts"
	"github.com/fundpool/fundpool/internal/auth"
	"github.com/fundpool/fundpool/internal/models"
	"github.com/fundpool/fundpool/internal/server"
	"github.com/fundpool/fundpool/internal/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := auth.NewAuthenticator(store, []byte("test-secret"), time.Hour, logger)
	svc := accounts.NewService(store, nil, logger)
	ts := httptest.NewServer(server.New(svc, authn, logger).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// call performs a JSON request and decodes the response body into out (when
// out is non-nil), returning the status code.
func call(t *testing.T, ts *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, ts *httptest.Server, username string) (userID, token string) {
	t.Helper()
	creds := map[string]string{"username": username, "password": "password-" + username}
	var user models.User
	if status := call(t, ts, http.MethodPost, "/register", "", creds, &user); status != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	var login struct {
		Token string `json:"token"`
	}
	if status := call(t, ts, http.MethodPost, "/login", "", creds, &login); status != http.StatusOK {
		t.Fatalf("login %s: status %d", username, status)
	}
	return user.ID, login.Token
}

func TestRequestsWithoutTokenAreUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/accounts", "/grants", "/transactions"} {
		if status := call(t, ts, http.MethodGet, path, "", nil, nil); status != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status %d, want 401", path, status)
		}
	}
}

func TestSharedAccountLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, u1 := registerAndLogin(t, ts, "u1")
	u2ID, u2 := registerAndLogin(t, ts, "u2")

	// U1 creates "Fund A" and implicitly receives full control.
	var account models.Account
	status := call(t, ts, http.MethodPost, "/accounts", u1,
		map[string]string{"name": "Fund A", "description": "shared fund"}, &account)
	if status != http.StatusCreated {
		t.Fatalf("create account: status %d", status)
	}

	// U2 holds no grant: the account is invisible, and so is a random ID.
	if status := call(t, ts, http.MethodGet, "/accounts/"+account.ID, u2, nil, nil); status != http.StatusForbidden {
		t.Errorf("grantless retrieve: status %d, want 403", status)
	}
	if status := call(t, ts, http.MethodGet, "/accounts/no-such-id", u2, nil, nil); status != http.StatusForbidden {
		t.Errorf("nonexistent retrieve: status %d, want 403", status)
	}

	// U1 grants U2 VIEW: retrieval works, update and posting stay denied.
	var grant models.Grant
	status = call(t, ts, http.MethodPost, "/grants", u1, map[string]string{
		"user_id": u2ID, "account_id": account.ID, "permission": "VIEW",
	}, &grant)
	if status != http.StatusCreated {
		t.Fatalf("grant view: status %d", status)
	}
	if status := call(t, ts, http.MethodGet, "/accounts/"+account.ID, u2, nil, nil); status != http.StatusOK {
		t.Errorf("view-holder retrieve: status %d, want 200", status)
	}
	if status := call(t, ts, http.MethodPut, "/accounts/"+account.ID, u2,
		map[string]string{"name": "hijacked"}, nil); status != http.StatusForbidden {
		t.Errorf("view-holder update: status %d, want 403", status)
	}
	if status := call(t, ts, http.MethodPost, "/transactions", u2, map[string]any{
		"account_id": account.ID, "amount": "10.00",
	}, nil); status != http.StatusForbidden {
		t.Errorf("view-holder post: status %d, want 403", status)
	}

	// Escalate U2 to POST_TRANSACTION: posting works, admin ops still do not.
	if status := call(t, ts, http.MethodPut, "/grants/"+grant.ID, u1,
		map[string]string{"permission": "POST_TRANSACTION"}, nil); status != http.StatusOK {
		t.Fatalf("re-level grant: status %d", status)
	}
	var tx models.Transaction
	status = call(t, ts, http.MethodPost, "/transactions", u2, map[string]any{
		"account_id": account.ID, "amount": "10.00", "description": "buy-in",
	}, &tx)
	if status != http.StatusCreated {
		t.Fatalf("post transaction: status %d", status)
	}
	if tx.UserID != u2ID {
		t.Errorf("transaction attributed to %s, want %s", tx.UserID, u2ID)
	}
	if status := call(t, ts, http.MethodDelete, "/accounts/"+account.ID, u2, nil, nil); status != http.StatusForbidden {
		t.Errorf("post-holder delete: status %d, want 403", status)
	}

	// Post-transaction holders can read the account's ledger.
	var txs []models.Transaction
	if status := call(t, ts, http.MethodGet, "/accounts/"+account.ID+"/transactions", u2, nil, &txs); status != http.StatusOK {
		t.Fatalf("list account transactions: status %d", status)
	}
	if len(txs) != 1 {
		t.Errorf("transaction count = %d, want 1", len(txs))
	}

	// Deleting the account cascades; the transaction is gone for everyone.
	if status := call(t, ts, http.MethodDelete, "/accounts/"+account.ID, u1, nil, nil); status != http.StatusNoContent {
		t.Fatalf("owner delete: status %d", status)
	}
	if status := call(t, ts, http.MethodGet, "/transactions/"+tx.ID, u2, nil, nil); status != http.StatusForbidden {
		t.Errorf("retrieve transaction after cascade: status %d, want 403", status)
	}
}

func TestValidationErrorsCarryFieldDetail(t *testing.T) {
	ts := newTestServer(t)
	_, u1 := registerAndLogin(t, ts, "u1")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/accounts",
		bytes.NewBufferString(`{"name":""}`))
	req.Header.Set("Authorization", "Bearer "+u1)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body struct {
		Error struct {
			Kind  string `json:"kind"`
			Field string `json:"field"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Kind != "validation_error" || body.Error.Field != "name" {
		t.Errorf("error = %+v, want validation_error on name", body.Error)
	}
}

func TestAccountListingIsScopedToGrants(t *testing.T) {
	ts := newTestServer(t)
	_, u1 := registerAndLogin(t, ts, "u1")
	_, u2 := registerAndLogin(t, ts, "u2")

	var mine models.Account
	if status := call(t, ts, http.MethodPost, "/accounts", u1,
		map[string]string{"name": "Mine"}, &mine); status != http.StatusCreated {
		t.Fatalf("create account: status %d", status)
	}

	var list []models.Account
	if status := call(t, ts, http.MethodGet, "/accounts", u2, nil, &list); status != http.StatusOK {
		t.Fatalf("list accounts: status %d", status)
	}
	if len(list) != 0 {
		t.Errorf("u2 sees %d accounts, want 0", len(list))
	}
	if status := call(t, ts, http.MethodGet, "/accounts", u1, nil, &list); status != http.StatusOK {
		t.Fatalf("list accounts: status %d", status)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("u1 list = %v, want [%s]", list, mine.ID)
	}
}
