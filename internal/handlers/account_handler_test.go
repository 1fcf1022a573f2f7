package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"authapp/internal/credentials"
	"authapp/internal/database"
	"authapp/internal/handlers"
	"authapp/internal/metrics"
	"authapp/internal/middleware"
	"authapp/internal/repositories"
	"authapp/internal/services"
	"authapp/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminUsername = "admin"
	adminPassword = "admin-password"
)

// setupApp sets up a Fiber app for testing with in-memory SQLite and the account handlers.
func setupApp(t *testing.T) (*fiber.App, repositories.UserRepository) {
	t.Helper()

	hasher, err := credentials.NewHasher(credentials.Options{
		Pepper:     "handler-test-pepper-0123",
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)

	db, err := database.Open("sqlite", ":memory:", logger.NewNop(), "error", repositories.NewPasswordPlugin(hasher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	userRepo := repositories.NewGORMUserRepository(db)
	accounts := services.NewAccountManager(userRepo, hasher, nil, metrics.NewMetrics("test"), logger.NewNop())

	_, err = accounts.CreateSuperuser(adminUsername, adminPassword)
	require.NoError(t, err)

	accountHandler := handlers.NewAccountHandler(accounts, logger.NewNop())
	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	accountHandler.RegisterRoutes(apiV1)
	accountHandler.RegisterAdminRoutes(apiV1.Group("/admin", middleware.AdminRequired(accounts, logger.NewNop())))

	return app, userRepo
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	return doJSONAs(t, app, "", "", method, path, body)
}

// doJSONAs sends HTTP Basic credentials when username is not empty.
func doJSONAs(t *testing.T, app *fiber.App, username, password, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.SetBasicAuth(username, password)
	}

	resp, err := app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func createUser(t *testing.T, app *fiber.App, username, password string) {
	t.Helper()
	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, status)
}

func TestCreateUser(t *testing.T) {
	app, userRepo := setupApp(t)

	status, resp := doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]string{
		"username": "testuser",
		"password": "password123",
		"name":     "Test User",
		"email":    "test@EXAMPLE.com",
	})
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User created successfully", resp["message"])

	user, ok := resp["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "testuser", user["username"])
	assert.Equal(t, "test@example.com", user["email"])
	assert.Equal(t, false, user["is_admin"])
	assert.Equal(t, true, user["is_active"])
	assert.NotContains(t, user, "password")

	stored, err := userRepo.GetByUsername("testuser")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", stored.Password)
	assert.NotContains(t, stored.Password, "password123")
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	app, _ := setupApp(t)
	createUser(t, app, "testuser", "password123")

	status, resp := doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]string{
		"username": "testuser",
		"password": "another",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "username already taken", resp["error"])
}

func TestCreateUser_Validation(t *testing.T) {
	app, userRepo := setupApp(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "missing username", body: map[string]string{"password": "secret"}},
		{name: "blank username", body: map[string]string{"username": "   ", "password": "secret"}},
		{name: "username too long", body: map[string]string{"username": "abcdefghijklmnopqrstu", "password": "secret"}},
		{name: "bad email", body: map[string]string{"username": "mail", "email": "not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := doJSON(t, app, http.MethodPost, "/api/v1/users", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "Validation failed", resp["message"])
		})
	}

	_, err := userRepo.GetByUsername("mail")
	assert.ErrorIs(t, err, repositories.ErrUserNotFound)
}

func TestCreateUser_InvalidBody(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUser(t *testing.T) {
	app, _ := setupApp(t)
	createUser(t, app, "alice", "wonderland")

	status, resp := doJSONAs(t, app, adminUsername, adminPassword, http.MethodGet, "/api/v1/admin/users/alice", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", resp["username"])
	assert.NotContains(t, resp, "password")

	status, _ = doJSONAs(t, app, adminUsername, adminPassword, http.MethodGet, "/api/v1/admin/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetUser_NotPublic(t *testing.T) {
	app, _ := setupApp(t)
	createUser(t, app, "alice", "wonderland")

	status, resp := doJSON(t, app, http.MethodGet, "/api/v1/admin/users/alice", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.NotContains(t, resp, "username")

	// a regular account cannot look up others
	status, _ = doJSONAs(t, app, "alice", "wonderland", http.MethodGet, "/api/v1/admin/users/"+adminUsername, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp = doJSON(t, app, http.MethodGet, "/api/v1/users/alice", nil)
	assert.NotEqual(t, http.StatusOK, status)
	assert.NotContains(t, resp, "is_admin")
}

func TestCheckCredentials(t *testing.T) {
	app, userRepo := setupApp(t)
	createUser(t, app, "bob", "builder")

	status, resp := doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "bob",
		"password": "builder",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["valid"])
	user, ok := resp["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, user, "last_login")

	stored, err := userRepo.GetByUsername("bob")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "bob",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "nobody",
		"password": "builder",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "bob",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCheckCredentials_UnusablePassword(t *testing.T) {
	app, _ := setupApp(t)

	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/users", map[string]string{"username": "locked"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "locked",
		"password": credentials.Unusable(),
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChangePassword(t *testing.T) {
	app, _ := setupApp(t)
	createUser(t, app, "carol", "first-secret")

	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/users/carol/password", map[string]string{
		"old_password": "wrong",
		"new_password": "second-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp := doJSON(t, app, http.MethodPost, "/api/v1/users/carol/password", map[string]string{
		"old_password": "first-secret",
		"new_password": "second-secret",
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Password changed successfully", resp["message"])

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "carol",
		"password": "first-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "carol",
		"password": "second-secret",
	})
	assert.Equal(t, http.StatusOK, status)
}

func TestCreateSuperuser_RequiresAdmin(t *testing.T) {
	app, userRepo := setupApp(t)
	createUser(t, app, "plain", "secret")

	newAdmin := []byte(`{"username":"second","password":"second-secret","name":"Second Admin","email":"second@EXAMPLE.com"}`)

	tests := []struct {
		name     string
		username string
		password string
		want     int
	}{
		{name: "regular user", username: "plain", password: "secret", want: http.StatusUnauthorized},
		{name: "wrong password", username: adminUsername, password: "wrong", want: http.StatusUnauthorized},
		{name: "admin", username: adminUsername, password: adminPassword, want: http.StatusCreated},
		{name: "duplicate", username: adminUsername, password: adminPassword, want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/superusers", bytes.NewReader(newAdmin))
			req.Header.Set("Content-Type", "application/json")
			req.SetBasicAuth(tt.username, tt.password)

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	stored, err := userRepo.GetByUsername("second")
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin)
	assert.Equal(t, "Second Admin", stored.Name)
	assert.Equal(t, "second@example.com", stored.Email)

	status, _ := doJSON(t, app, http.MethodPost, "/api/v1/auth/check", map[string]string{
		"username": "second",
		"password": "second-secret",
	})
	assert.Equal(t, http.StatusOK, status)
}
