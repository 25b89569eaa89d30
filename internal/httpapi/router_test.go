package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pocketllm/pocketchat/internal/admin"
	"github.com/pocketllm/pocketchat/internal/apikey"
	"github.com/pocketllm/pocketchat/internal/auth"
	"github.com/pocketllm/pocketchat/internal/cache"
	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/httpapi/handlers"
	"github.com/pocketllm/pocketchat/internal/llm"
	"github.com/pocketllm/pocketchat/internal/models"
	"github.com/pocketllm/pocketchat/internal/session"
)

type cannedProvider struct {
	text  string
	calls int
}

func (p *cannedProvider) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	p.calls++
	return p.text, nil
}

type apiFixture struct {
	router   *gin.Engine
	db       *gorm.DB
	provider *cannedProvider
	sessions session.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(
		&models.User{}, &chat.Chat{}, &chat.Message{}, &chat.Job{},
		&cache.Entry{}, &apikey.Key{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sessions := session.NewMemoryStore()
	provider := &cannedProvider{text: "generated answer"}
	gateway := llm.NewGateway(provider, 5*time.Second)
	cacheStore := cache.NewStore(db)

	authSvc := auth.NewService(db, sessions)
	chatSvc := chat.NewService(sessions, chat.NewRepo(db), cacheStore, gateway)
	keySvc := apikey.NewService(db)
	adminSvc := admin.NewService(db, cacheStore)

	h := handlers.NewHandler(authSvc, chatSvc, keySvc, adminSvc, nil)
	return &apiFixture{
		router:   NewRouter(h, sessions, authSvc),
		db:       db,
		provider: provider,
		sessions: sessions,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, path, sessionID string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-Id", sessionID)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %s %s: %v (body %q)", method, path, err, w.Body.String())
	}
	return w, env
}

func (f *apiFixture) signUp(t *testing.T, email string) string {
	t.Helper()
	w, env := f.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"email":    email,
		"password": "hunter2secret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("signup: status %d body %s", w.Code, w.Body.String())
	}
	var data struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode signup data: %v", err)
	}
	return data.SessionID
}

func TestAuthAndChatFlow(t *testing.T) {
	f := newAPIFixture(t)
	sid := f.signUp(t, "alice@example.com")

	w, env := f.do(t, http.MethodPost, "/api/chat/create", sid, gin.H{"title": "first"})
	if w.Code != http.StatusOK {
		t.Fatalf("create chat: status %d", w.Code)
	}
	var created struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode chat: %v", err)
	}

	w, env = f.do(t, http.MethodPost, "/api/chat/message", sid, gin.H{
		"chat_id": created.ChatID,
		"message": "What is Go?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("send message: status %d body %s", w.Code, w.Body.String())
	}
	var sent struct {
		Answer string `json:"answer"`
		Cached bool   `json:"cached"`
	}
	if err := json.Unmarshal(env.Data, &sent); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if sent.Cached || sent.Answer != "generated answer" {
		t.Fatalf("first answer = %+v", sent)
	}

	// Same question, different casing: served from the cache with the marker.
	w, env = f.do(t, http.MethodPost, "/api/chat/message", sid, gin.H{
		"chat_id": created.ChatID,
		"message": "  what is go?  ",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second message: status %d", w.Code)
	}
	if err := json.Unmarshal(env.Data, &sent); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !sent.Cached || !strings.HasPrefix(sent.Answer, chat.CachedPrefix) {
		t.Fatalf("second answer = %+v", sent)
	}
	if f.provider.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", f.provider.calls)
	}

	w, _ = f.do(t, http.MethodGet, "/api/chat/history/"+created.ChatID, sid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: status %d", w.Code)
	}

	w, _ = f.do(t, http.MethodDelete, "/api/chat/"+created.ChatID, sid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
	w, _ = f.do(t, http.MethodGet, "/api/chat/history/"+created.ChatID, sid, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("history after delete: status %d", w.Code)
	}
}

func TestSessionEnforcement(t *testing.T) {
	f := newAPIFixture(t)

	// No header at all.
	w, _ := f.do(t, http.MethodGet, "/api/chat/list", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no session: status %d", w.Code)
	}

	// Header present but unknown.
	w, _ = f.do(t, http.MethodGet, "/api/chat/list", "bogus-session", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus session: status %d", w.Code)
	}

	// Logout invalidates the session.
	sid := f.signUp(t, "bob@example.com")
	w, _ = f.do(t, http.MethodPost, "/api/auth/logout", sid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status %d", w.Code)
	}
	w, _ = f.do(t, http.MethodGet, "/api/chat/list", sid, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("after logout: status %d", w.Code)
	}
}

func TestOwnershipHiddenAcrossUsers(t *testing.T) {
	f := newAPIFixture(t)
	aliceSid := f.signUp(t, "alice@example.com")
	bobSid := f.signUp(t, "bob@example.com")

	_, env := f.do(t, http.MethodPost, "/api/chat/create", aliceSid, gin.H{"title": "private"})
	var created struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode chat: %v", err)
	}

	w, _ := f.do(t, http.MethodGet, "/api/chat/history/"+created.ChatID, bobSid, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign history: status %d, want 404", w.Code)
	}
	w, _ = f.do(t, http.MethodPost, "/api/chat/message", bobSid, gin.H{
		"chat_id": created.ChatID,
		"message": "hi",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign message: status %d, want 404", w.Code)
	}
}

func TestAPIKeyLifecycleAndPlayground(t *testing.T) {
	f := newAPIFixture(t)
	sid := f.signUp(t, "dev@example.com")

	w, env := f.do(t, http.MethodPost, "/api/keys", sid, gin.H{"name": "ci"})
	if w.Code != http.StatusOK {
		t.Fatalf("create key: status %d", w.Code)
	}
	var key struct {
		KeyID  string `json:"key_id"`
		Secret string `json:"api_key"`
	}
	if err := json.Unmarshal(env.Data, &key); err != nil {
		t.Fatalf("decode key: %v", err)
	}
	if !strings.HasPrefix(key.Secret, "pk_") {
		t.Fatalf("secret %q missing pk_ prefix", key.Secret)
	}

	// Playground with the key.
	body, _ := json.Marshal(gin.H{"message": "ping the model"})
	req := httptest.NewRequest(http.MethodPost, "/api/playground/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key.Secret)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("playground: status %d body %s", rec.Code, rec.Body.String())
	}

	// Without a key it is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/playground/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("playground without key: status %d", rec.Code)
	}

	// Revoked keys stop working.
	w, _ = f.do(t, http.MethodDelete, "/api/keys/"+key.KeyID, sid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke: status %d", w.Code)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/playground/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key.Secret)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("playground after revoke: status %d", rec.Code)
	}
}

func TestAdminSurface(t *testing.T) {
	f := newAPIFixture(t)
	userSid := f.signUp(t, "user@example.com")

	// Promote a second account and log it in.
	adminSid := f.signUp(t, "root@example.com")
	if err := f.db.Model(&models.User{}).
		Where("email = ?", "root@example.com").
		Update("is_admin", true).Error; err != nil {
		t.Fatalf("promote: %v", err)
	}

	w, _ := f.do(t, http.MethodGet, "/api/admin/stats", userSid, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("non-admin stats: status %d, want 403", w.Code)
	}

	w, env := f.do(t, http.MethodGet, "/api/admin/stats", adminSid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin stats: status %d body %s", w.Code, w.Body.String())
	}
	var stats struct {
		TotalUsers int64 `json:"total_users"`
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalUsers != 2 {
		t.Fatalf("total users = %d, want 2", stats.TotalUsers)
	}

	// Admin can delete any user's chat.
	_, env = f.do(t, http.MethodPost, "/api/chat/create", userSid, gin.H{"title": "doomed"})
	var created struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	w, _ = f.do(t, http.MethodDelete, "/api/admin/chats/"+created.ChatID, adminSid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin delete: status %d", w.Code)
	}

	w, _ = f.do(t, http.MethodDelete, "/api/admin/cache", adminSid, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cache clear: status %d", w.Code)
	}
}

func TestDuplicateSignupConflicts(t *testing.T) {
	f := newAPIFixture(t)
	f.signUp(t, "taken@example.com")

	w, _ := f.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"email":    "taken@example.com",
		"password": "hunter2secret",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: status %d, want 409", w.Code)
	}
}
