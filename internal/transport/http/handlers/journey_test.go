package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"zonafiscal/internal/app/server"
	"zonafiscal/internal/domain/auth"
	"zonafiscal/internal/platform/config"
)

func testConfig(dbURL string) config.Config {
	return config.Config{
		DatabaseURL:        dbURL,
		JWTSecret:          "test-secret",
		Environment:        "test",
		SeedAdminEmail:     "admin@test.local",
		SeedAdminPassword:  "ChangeMe123!",
		AppBaseURL:         "http://localhost:8080",
		EmailFrom:          "no-reply@test.local",
		ReactivationWindow: 7 * 24 * time.Hour,
		RunMigrations:      true,
		MigrationsDir:      repoPath("migrations"),
		RunSeed:            true,
		MaxBodyBytes:       1048576,
		MetricsEnabled:     true,
	}
}

func repoPath(rel string) string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "..", rel)
}

func startApp(t *testing.T) (*server.App, *httptest.Server) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	app, err := server.New(context.Background(), testConfig(dbURL))
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(app.Close)

	ts := httptest.NewServer(app.Router)
	t.Cleanup(ts.Close)
	return app, ts
}

func doJSON(t *testing.T, client *http.Client, method, url, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, url, err)
	}
	return resp.StatusCode, decoded
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) string {
	t.Helper()
	status, body := doJSON(t, client, http.MethodPost, baseURL+"/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", email, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login %s: empty token", email)
	}
	return token
}

func createUser(t *testing.T, app *server.App, email, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	var id string
	err = app.DB.QueryRow(context.Background(), `
    INSERT INTO users (email, name, password_hash, cpf, phone)
    VALUES ($1, $2, $3, $4, $5)
    RETURNING id
  `, email, "João da Silva", hash, "123.456.789-09", "+55 11 91234-5678").Scan(&id)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func TestAccountLifecycleJourney(t *testing.T) {
	app, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	userEmail := fmt.Sprintf("journey-%d@example.com", time.Now().UnixNano())
	userID := createUser(t, app, userEmail, "Secret123!")
	userToken := login(t, client, ts.URL, userEmail, "Secret123!")

	// Consent round trip.
	status, body := doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/consent", userToken, map[string]any{
		"analytics": true,
		"marketing": false,
	})
	if status != http.StatusOK {
		t.Fatalf("update consent: status %d body %v", status, body)
	}
	status, body = doJSON(t, client, http.MethodGet, ts.URL+"/lgpd/consent", userToken, nil)
	if status != http.StatusOK {
		t.Fatalf("get consent: status %d body %v", status, body)
	}
	if body["hasConsented"] != true {
		t.Fatalf("expected hasConsented=true, got %v", body["hasConsented"])
	}
	consents, _ := body["consents"].(map[string]any)
	if consents["essential"] != true || consents["analytics"] != true {
		t.Fatalf("unexpected consents %v", consents)
	}

	// Self-service anonymization.
	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/delete-account", userToken, map[string]any{
		"passwordVerified": true,
		"deleteType":       "anonymize",
		"reason":           "não uso mais o serviço",
	})
	if status != http.StatusOK {
		t.Fatalf("anonymize: status %d body %v", status, body)
	}
	if body["type"] != "anonymize" {
		t.Fatalf("expected type=anonymize, got %v", body["type"])
	}

	// Anonymized accounts cannot log in.
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/auth/login", "", map[string]any{
		"email":    userEmail,
		"password": "Secret123!",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymized login: status %d, want 401", status)
	}

	// Admin opens a reactivation request; the token equals the user id.
	// The contact address is supplied out of band: the account's own email
	// is the anonymization placeholder.
	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/revert-anonymization", adminToken, map[string]any{
		"userId": userID,
		"email":  userEmail,
	})
	if status != http.StatusOK {
		t.Fatalf("revert-anonymization: status %d body %v", status, body)
	}
	if body["reactivationRequestId"] != userID {
		t.Fatalf("reactivationRequestId = %v, want %s", body["reactivationRequestId"], userID)
	}

	// Token validates while pending.
	status, body = doJSON(t, client, http.MethodGet, ts.URL+"/lgpd/validate-reactivation-token?token="+userID, "", nil)
	if status != http.StatusOK {
		t.Fatalf("validate token: status %d body %v", status, body)
	}
	if body["valid"] != true || body["userId"] != userID {
		t.Fatalf("unexpected validation body %v", body)
	}

	// User submits identity data.
	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/submit-reactivation", "", map[string]any{
		"token": userID,
		"name":  "João da Silva",
		"email": userEmail,
		"cpf":   "123.456.789-09",
		"phone": "+55 11 91234-5678",
	})
	if status != http.StatusOK {
		t.Fatalf("submit-reactivation: status %d body %v", status, body)
	}

	// A second submission of the same token is refused.
	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/submit-reactivation", "", map[string]any{
		"token": userID,
		"name":  "João da Silva",
		"email": userEmail,
		"cpf":   "123.456.789-09",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate submit: status %d, want 400", status)
	}
	if body["error"] != "Solicitação já processada" {
		t.Fatalf("duplicate submit error = %v", body["error"])
	}

	// Admin approves; the account is restored.
	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/approve-reactivation", adminToken, map[string]any{
		"token":    userID,
		"approved": true,
	})
	if status != http.StatusOK {
		t.Fatalf("approve-reactivation: status %d body %v", status, body)
	}

	restoredToken := login(t, client, ts.URL, userEmail, "Secret123!")
	if restoredToken == "" {
		t.Fatal("restored user could not log in")
	}

	// The audit trail carries the full lifecycle.
	status, body = doJSON(t, client, http.MethodGet, ts.URL+"/admin/lgpd/audit-logs?userId="+userID, adminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("audit-logs: status %d body %v", status, body)
	}
	logs, _ := body["logs"].([]any)
	actions := map[string]bool{}
	for _, entry := range logs {
		rec, _ := entry.(map[string]any)
		action, _ := rec["action"].(string)
		actions[action] = true
	}
	for _, want := range []string{"account_anonymized", "reactivation_requested", "reactivation_submitted", "reactivation_approved", "consent_updated"} {
		if !actions[want] {
			t.Errorf("audit trail missing action %q (have %v)", want, actions)
		}
	}
}

func TestRejectReactivationKeepsAccountAnonymized(t *testing.T) {
	app, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	userEmail := fmt.Sprintf("reject-%d@example.com", time.Now().UnixNano())
	userID := createUser(t, app, userEmail, "Secret123!")
	userToken := login(t, client, ts.URL, userEmail, "Secret123!")

	status, body := doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/delete-account", userToken, map[string]any{
		"passwordVerified": true,
		"deleteType":       "anonymize",
	})
	if status != http.StatusOK {
		t.Fatalf("anonymize: status %d body %v", status, body)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/revert-anonymization", adminToken, map[string]any{
		"userId": userID,
		"email":  userEmail,
	})
	if status != http.StatusOK {
		t.Fatalf("revert-anonymization: status %d body %v", status, body)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/submit-reactivation", "", map[string]any{
		"token": userID,
		"name":  "João da Silva",
		"email": userEmail,
		"cpf":   "123.456.789-09",
	})
	if status != http.StatusOK {
		t.Fatalf("submit-reactivation: status %d body %v", status, body)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/approve-reactivation", adminToken, map[string]any{
		"token":    userID,
		"approved": false,
	})
	if status != http.StatusOK {
		t.Fatalf("reject: status %d body %v", status, body)
	}

	// The account stays anonymized and the workflow flag comes off.
	var anonymized, reverting bool
	var email string
	err := app.DB.QueryRow(context.Background(), `
    SELECT anonymized, reverting_anonymization, email FROM users WHERE id = $1
  `, userID).Scan(&anonymized, &reverting, &email)
	if err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !anonymized {
		t.Error("anonymized = false after rejection, want true")
	}
	if reverting {
		t.Error("reverting_anonymization still set after rejection")
	}
	if email == userEmail {
		t.Error("rejection restored the original email")
	}

	var reqStatus string
	if err := app.DB.QueryRow(context.Background(), `
    SELECT status FROM reactivation_requests WHERE token = $1
  `, userID).Scan(&reqStatus); err != nil {
		t.Fatalf("read request: %v", err)
	}
	if reqStatus != "rejected" {
		t.Errorf("request status = %q, want rejected", reqStatus)
	}

	var rejectedAudits int
	if err := app.DB.QueryRow(context.Background(), `
    SELECT COUNT(1) FROM audit_records WHERE user_id = $1 AND action = 'reactivation_rejected'
  `, userID).Scan(&rejectedAudits); err != nil {
		t.Fatalf("count audits: %v", err)
	}
	if rejectedAudits != 1 {
		t.Errorf("reactivation_rejected audit records = %d, want 1", rejectedAudits)
	}

	// Still no password path back in.
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/auth/login", "", map[string]any{
		"email":    userEmail,
		"password": "Secret123!",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("login after rejection: status %d, want 401", status)
	}
}

func TestApproveReactivationWithTakenEmail(t *testing.T) {
	app, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	suffix := time.Now().UnixNano()
	userEmail := fmt.Sprintf("conflict-%d@example.com", suffix)
	otherEmail := fmt.Sprintf("squatter-%d@example.com", suffix)
	userID := createUser(t, app, userEmail, "Secret123!")
	createUser(t, app, otherEmail, "Secret123!")
	userToken := login(t, client, ts.URL, userEmail, "Secret123!")

	status, body := doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/delete-account", userToken, map[string]any{
		"passwordVerified": true,
		"deleteType":       "anonymize",
	})
	if status != http.StatusOK {
		t.Fatalf("anonymize: status %d body %v", status, body)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/revert-anonymization", adminToken, map[string]any{
		"userId": userID,
	})
	if status != http.StatusOK {
		t.Fatalf("revert-anonymization: status %d body %v", status, body)
	}

	// The submitted address belongs to another live account.
	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/submit-reactivation", "", map[string]any{
		"token": userID,
		"name":  "João da Silva",
		"email": otherEmail,
		"cpf":   "123.456.789-09",
	})
	if status != http.StatusOK {
		t.Fatalf("submit-reactivation: status %d body %v", status, body)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/approve-reactivation", adminToken, map[string]any{
		"token":    userID,
		"approved": true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("approve with taken email: status %d body %v", status, body)
	}
	if body["error"] != "E-mail já está em uso por outra conta" {
		t.Fatalf("approve with taken email error = %v", body["error"])
	}

	// The failed approval left the account untouched and the request open.
	var anonymized bool
	if err := app.DB.QueryRow(context.Background(), `
    SELECT anonymized FROM users WHERE id = $1
  `, userID).Scan(&anonymized); err != nil {
		t.Fatalf("read user: %v", err)
	}
	if !anonymized {
		t.Error("anonymized = false after failed approval, want true")
	}
	var reqStatus string
	if err := app.DB.QueryRow(context.Background(), `
    SELECT status FROM reactivation_requests WHERE token = $1
  `, userID).Scan(&reqStatus); err != nil {
		t.Fatalf("read request: %v", err)
	}
	if reqStatus != "awaiting_approval" {
		t.Errorf("request status = %q, want awaiting_approval", reqStatus)
	}
}

func TestExpiredReactivationToken(t *testing.T) {
	app, ts := startApp(t)
	client := ts.Client()

	adminToken := login(t, client, ts.URL, "admin@test.local", "ChangeMe123!")

	userEmail := fmt.Sprintf("expired-%d@example.com", time.Now().UnixNano())
	userID := createUser(t, app, userEmail, "Secret123!")
	userToken := login(t, client, ts.URL, userEmail, "Secret123!")

	status, body := doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/delete-account", userToken, map[string]any{
		"passwordVerified": true,
		"deleteType":       "anonymize",
	})
	if status != http.StatusOK {
		t.Fatalf("anonymize: status %d body %v", status, body)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/admin/lgpd/revert-anonymization", adminToken, map[string]any{
		"userId": userID,
	})
	if status != http.StatusOK {
		t.Fatalf("revert-anonymization: status %d body %v", status, body)
	}

	// Age the request to eight days.
	if _, err := app.DB.Exec(context.Background(), `
    UPDATE reactivation_requests SET requested_at = now() - interval '8 days' WHERE token = $1
  `, userID); err != nil {
		t.Fatalf("age request: %v", err)
	}

	status, body = doJSON(t, client, http.MethodPost, ts.URL+"/lgpd/submit-reactivation", "", map[string]any{
		"token": userID,
		"name":  "João da Silva",
		"email": userEmail,
		"cpf":   "123.456.789-09",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expired submit: status %d, want 400", status)
	}
	if body["error"] != "Token expirado" {
		t.Fatalf("expired submit error = %v", body["error"])
	}

	status, body = doJSON(t, client, http.MethodGet, ts.URL+"/lgpd/validate-reactivation-token?token="+userID, "", nil)
	if status != http.StatusBadRequest || body["error"] != "Token expirado" {
		t.Fatalf("expired validate: status %d body %v", status, body)
	}
}

func TestExportDataDownload(t *testing.T) {
	app, ts := startApp(t)
	client := ts.Client()

	userEmail := fmt.Sprintf("export-%d@example.com", time.Now().UnixNano())
	userID := createUser(t, app, userEmail, "Secret123!")
	userToken := login(t, client, ts.URL, userEmail, "Secret123!")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/lgpd/export-data", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+userToken)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("export-data: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export-data: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	disposition := resp.Header.Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, userID) {
		t.Errorf("Content-Disposition = %q, want attachment with filename containing %s", disposition, userID)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if payload["userId"] != userID {
		t.Errorf("export userId = %v", payload["userId"])
	}
	user, _ := payload["user"].(map[string]any)
	if user["email"] != userEmail {
		t.Errorf("export user email = %v", user["email"])
	}
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	app, ts := startApp(t)
	client := ts.Client()

	userEmail := fmt.Sprintf("plain-%d@example.com", time.Now().UnixNano())
	createUser(t, app, userEmail, "Secret123!")
	userToken := login(t, client, ts.URL, userEmail, "Secret123!")

	// No token at all: 401 before anything is read.
	status, body := doJSON(t, client, http.MethodGet, ts.URL+"/admin/lgpd/anonymized-users", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("no token: status %d body %v", status, body)
	}
	if body["error"] != "Token ausente" {
		t.Fatalf("no token error = %v", body["error"])
	}

	// Valid token without the permission: 403, no mutation possible.
	status, body = doJSON(t, client, http.MethodGet, ts.URL+"/admin/lgpd/anonymized-users", userToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("plain user: status %d body %v", status, body)
	}
	if body["error"] != "Acesso negado" {
		t.Fatalf("plain user error = %v", body["error"])
	}

	// Cron endpoint refuses a missing shared secret.
	status, _ = doJSON(t, client, http.MethodGet, ts.URL+"/cron/lgpd-deadline-check", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("cron without secret: status %d, want 401", status)
	}
}
