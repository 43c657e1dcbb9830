package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/medivox/internal/config"
	"github.com/hitoshi/medivox/internal/model"
	"github.com/hitoshi/medivox/internal/patient"
	"github.com/hitoshi/medivox/internal/recording"
	"github.com/hitoshi/medivox/internal/security"
	"github.com/hitoshi/medivox/internal/storage"
	"github.com/hitoshi/medivox/internal/template"
	"github.com/hitoshi/medivox/internal/user"
)

// --- インメモリリポジトリ（結合テスト用） ---

type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User
	patients map[string]*model.Patient
	sessions map[string]*model.Session
	chunks   map[string]*model.Chunk
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		patients: make(map[string]*model.Patient),
		sessions: make(map[string]*model.Session),
		chunks:   make(map[string]*model.Chunk),
	}
}

type memUserRepo struct{ s *memStore }

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[u.ID] = u
	return nil
}

type memPatientRepo struct{ s *memStore }

func (r *memPatientRepo) ListByUserID(_ context.Context, userID string) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Patient
	for _, p := range r.s.patients {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *memPatientRepo) Create(_ context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.patients[p.ID] = p
	return nil
}

func (r *memPatientRepo) FindByID(_ context.Context, id string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (r *memPatientRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[id]; !ok {
		return false, nil
	}
	delete(r.s.patients, id)
	return true, nil
}

type memSessionRepo struct{ s *memStore }

func (r *memSessionRepo) Create(_ context.Context, sess *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[sess.ID] = sess
	return nil
}

func (r *memSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess, nil
}

func (r *memSessionRepo) ListByPatientID(_ context.Context, patientID string) ([]*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Session
	for _, sess := range r.s.sessions {
		if sess.PatientID == patientID {
			result = append(result, sess)
		}
	}
	return result, nil
}

func (r *memSessionRepo) ListByUserID(_ context.Context, userID string) ([]*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Session
	for _, sess := range r.s.sessions {
		if sess.UserID == userID {
			result = append(result, sess)
		}
	}
	return result, nil
}

func (r *memSessionRepo) Complete(_ context.Context, id string, endTime time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[id]; ok {
		sess.Status = model.SessionStatusCompleted
		sess.EndTime = &endTime
	}
	return nil
}

func (r *memSessionRepo) UpdateTotalChunks(_ context.Context, id string, total int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess, ok := r.s.sessions[id]; ok {
		sess.TotalChunksClient = total
	}
	return nil
}

type memChunkRepo struct{ s *memStore }

func (r *memChunkRepo) Upsert(_ context.Context, c *model.Chunk) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.chunks[fmt.Sprintf("%s/%d", c.SessionID, c.ChunkIndex)] = c
	return nil
}

func (r *memChunkRepo) FindBySessionAndIndex(_ context.Context, sessionID string, chunkIndex int) (*model.Chunk, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chunks[fmt.Sprintf("%s/%d", sessionID, chunkIndex)]
	if !ok {
		return nil, nil
	}
	return c, nil
}

func (r *memChunkRepo) ListBySessionID(_ context.Context, sessionID string) ([]*model.Chunk, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []*model.Chunk
	for _, c := range r.s.chunks {
		if c.SessionID == sessionID {
			result = append(result, c)
		}
	}
	return result, nil
}

type memTemplateRepo struct {
	mu        sync.Mutex
	templates []*model.Template
}

func (r *memTemplateRepo) ListForUser(_ context.Context, userID string) ([]*model.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*model.Template
	for _, t := range r.templates {
		if t.UserID == userID || t.IsGlobal() {
			result = append(result, t)
		}
	}
	return result, nil
}

func (r *memTemplateRepo) Insert(_ context.Context, t *model.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, t)
	return nil
}

func (r *memTemplateRepo) CountAll(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.templates), nil
}

// memBlobStore はアップロードされたバイトをメモリに保持するBlobStore。
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobStore) CreateUploadTarget(_ context.Context, key, _ string, _ time.Duration) (*storage.UploadTarget, error) {
	return &storage.UploadTarget{
		UploadURL: "https://store.example.com/signed/" + key,
		ObjectKey: key,
		PublicURL: "https://store.example.com/" + key,
	}, nil
}

func (m *memBlobStore) Upload(_ context.Context, key, _ string, r io.ReadSeeker) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return "https://store.example.com/" + key, nil
}

func (m *memBlobStore) ResolveURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://store.example.com/" + key, nil
}

func (m *memBlobStore) EnsureBucketExists(_ context.Context) error { return nil }

// nopCollector はメトリクスを捨てるCollector。
type nopCollector struct{}

func (nopCollector) IncPresign()                        {}
func (nopCollector) IncChunkUpload()                    {}
func (nopCollector) IncUploadFail()                     {}
func (nopCollector) IncSessionCompleted()               {}
func (nopCollector) ObserveUploadPushLatency(_ float64) {}

// newIntegrationRouter は実サービス＋インメモリ永続化で全ルートを構成する。
func newIntegrationRouter(t *testing.T, mode config.UploadMode) http.Handler {
	t.Helper()

	store := newMemStore()
	blob := &memBlobStore{objects: make(map[string][]byte)}
	sanitizer := security.NewNameSanitizer()

	cfg := &config.Config{
		UploadMode:    mode,
		BaseURL:       "http://localhost:8080",
		PresignExpiry: time.Hour,
		MaxChunkSize:  1 << 20,
	}

	patientSvc := patient.NewPatientService(&memPatientRepo{s: store}, sanitizer)
	recordingSvc := recording.NewRecordingService(
		&memSessionRepo{s: store},
		&memChunkRepo{s: store},
		&memPatientRepo{s: store},
		blob,
		storage.NewRelayCache(t.TempDir()),
		nopCollector{},
		cfg,
	)
	templateSvc := template.NewTemplateService(&memTemplateRepo{})
	userSvc := user.NewUserService(&memUserRepo{s: store})

	return newTestRouter(t, &RouterDeps{
		PatientService:  patientSvc,
		SessionService:  recordingSvc,
		UploadService:   recordingSvc,
		TemplateService: templateSvc,
		UserService:     userSvc,
	})
}

// doJSON は認証トークン付きでJSONリクエストを送り、レスポンスをデコードする。
func doJSON(t *testing.T, router http.Handler, method, path, body string, out any) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if out != nil && w.Body.Len() > 0 {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
	return w.Code
}

// エンドツーエンド: 患者作成 → セッション作成 → チャンク0をpresign/notify →
// チャンク1をisLast=trueでnotify → セッション詳細がcompletedと2チャンクを示す
func TestIntegration_FullRecordingFlow(t *testing.T) {
	router := newIntegrationRouter(t, config.UploadModePresign)

	// 1. 患者作成
	var created patientResponse
	code := doJSON(t, router, http.MethodPost, "/v1/patients",
		`{"userId":"u1","name":"Alice"}`, &created)
	if code != http.StatusCreated {
		t.Fatalf("create patient: status = %d, want 201", code)
	}

	// 2. セッション作成
	var session sessionResponse
	code = doJSON(t, router, http.MethodPost, "/v1/upload-session",
		fmt.Sprintf(`{"userId":"u1","patientId":"%s"}`, created.ID), &session)
	if code != http.StatusCreated {
		t.Fatalf("create session: status = %d, want 201", code)
	}
	if session.Status != "recording" {
		t.Fatalf("status = %q, want recording", session.Status)
	}
	if session.PatientName != "Alice" {
		t.Errorf("patientName = %q, want Alice (snapshot)", session.PatientName)
	}

	// 3. チャンク0: presign → notify (isLast=false)
	var presign0 map[string]any
	code = doJSON(t, router, http.MethodPost, "/v1/get-presigned-url",
		fmt.Sprintf(`{"sessionId":"%s","chunkNumber":0,"mimeType":"audio/mp4"}`, session.SessionID), &presign0)
	if code != http.StatusOK {
		t.Fatalf("presign chunk 0: status = %d, want 200", code)
	}
	if presign0["gcsPath"] != presign0["storagePath"] {
		t.Error("gcsPath and storagePath should carry the same key")
	}

	var notify0 notifyResponse
	code = doJSON(t, router, http.MethodPost, "/v1/notify-chunk-uploaded",
		fmt.Sprintf(`{"sessionId":"%s","chunkNumber":0,"isLast":false}`, session.SessionID), &notify0)
	if code != http.StatusOK {
		t.Fatalf("notify chunk 0: status = %d, want 200", code)
	}

	// isLast=falseではセッションはrecordingのまま
	var detail struct {
		Session sessionResponse `json:"session"`
		Chunks  []chunkResponse `json:"chunks"`
	}
	doJSON(t, router, http.MethodGet, "/v1/session-details/"+session.SessionID, "", &detail)
	if detail.Session.Status != "recording" {
		t.Errorf("after chunk 0: status = %q, want recording", detail.Session.Status)
	}

	// 4. チャンク1: presign → notify (isLast=true)
	code = doJSON(t, router, http.MethodPost, "/v1/get-presigned-url",
		fmt.Sprintf(`{"sessionId":"%s","chunkNumber":1,"mimeType":"audio/mp4"}`, session.SessionID), nil)
	if code != http.StatusOK {
		t.Fatalf("presign chunk 1: status = %d, want 200", code)
	}

	var notify1 notifyResponse
	code = doJSON(t, router, http.MethodPost, "/v1/notify-chunk-uploaded",
		fmt.Sprintf(`{"sessionId":"%s","chunkNumber":1,"isLast":true,"totalChunks":2}`, session.SessionID), &notify1)
	if code != http.StatusOK {
		t.Fatalf("notify chunk 1: status = %d, want 200", code)
	}
	if !notify1.SessionCompleted {
		t.Error("sessionCompleted should be true for the last chunk")
	}

	// 5. セッション詳細: completed + 2チャンク
	doJSON(t, router, http.MethodGet, "/v1/session-details/"+session.SessionID, "", &detail)
	if detail.Session.Status != "completed" {
		t.Errorf("final status = %q, want completed", detail.Session.Status)
	}
	if detail.Session.EndTime == "" {
		t.Error("endTime should be stamped")
	}
	if len(detail.Chunks) != 2 {
		t.Errorf("len(chunks) = %d, want 2", len(detail.Chunks))
	}
	for _, c := range detail.Chunks {
		if !c.Uploaded {
			t.Errorf("chunk %d should be uploaded", c.ChunkNumber)
		}
	}
}

// リレーモード: presignが同一オリジンPUT URLを返し、PUT → notifyでバイトが永続化される
func TestIntegration_RelayFlow(t *testing.T) {
	router := newIntegrationRouter(t, config.UploadModeRelay)

	var created patientResponse
	doJSON(t, router, http.MethodPost, "/v1/patients", `{"userId":"u1","name":"Alice"}`, &created)

	var session sessionResponse
	doJSON(t, router, http.MethodPost, "/v1/upload-session",
		fmt.Sprintf(`{"userId":"u1","patientId":"%s"}`, created.ID), &session)

	var presign map[string]any
	doJSON(t, router, http.MethodPost, "/v1/get-presigned-url",
		fmt.Sprintf(`{"sessionId":"%s","chunkNumber":0}`, session.SessionID), &presign)

	uploadURL, _ := presign["uploadUrl"].(string)
	wantSuffix := fmt.Sprintf("/v1/upload-chunk/%s/0", session.SessionID)
	if !strings.HasSuffix(uploadURL, wantSuffix) {
		t.Fatalf("uploadUrl = %q, want suffix %q", uploadURL, wantSuffix)
	}

	// 同一オリジンPUTでバイトを中継
	code := doJSON(t, router, http.MethodPut, wantSuffix, "audio-bytes", nil)
	if code != http.StatusOK {
		t.Fatalf("relay PUT: status = %d, want 200", code)
	}

	var notify notifyResponse
	code = doJSON(t, router, http.MethodPost, "/v1/notify-chunk-uploaded",
		fmt.Sprintf(`{"sessionId":"%s","chunkNumber":0,"isLast":true}`, session.SessionID), &notify)
	if code != http.StatusOK {
		t.Fatalf("notify: status = %d, want 200", code)
	}
	if notify.DownloadURL == "" {
		t.Error("downloadUrl should be present")
	}
}

// 存在しない患者へのセッション作成が404になることを検証
func TestIntegration_SessionForMissingPatient(t *testing.T) {
	router := newIntegrationRouter(t, config.UploadModePresign)

	code := doJSON(t, router, http.MethodPost, "/v1/upload-session",
		`{"userId":"u1","patientId":"missing"}`, nil)
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

// 患者削除が既存セッションへ波及しないことを検証
func TestIntegration_PatientDeleteKeepsSessions(t *testing.T) {
	router := newIntegrationRouter(t, config.UploadModePresign)

	var created patientResponse
	doJSON(t, router, http.MethodPost, "/v1/patients", `{"userId":"u1","name":"Alice"}`, &created)

	var session sessionResponse
	doJSON(t, router, http.MethodPost, "/v1/upload-session",
		fmt.Sprintf(`{"userId":"u1","patientId":"%s"}`, created.ID), &session)

	code := doJSON(t, router, http.MethodDelete, "/v1/patients/"+created.ID, "", nil)
	if code != http.StatusNoContent {
		t.Fatalf("delete patient: status = %d, want 204", code)
	}

	// セッションは残る
	var detail struct {
		Session sessionResponse `json:"session"`
	}
	code = doJSON(t, router, http.MethodGet, "/v1/session-details/"+session.SessionID, "", &detail)
	if code != http.StatusOK {
		t.Errorf("session after patient delete: status = %d, want 200", code)
	}
}

// ユーザー解決エンドポイントがget-or-createで同じユーザーを返すことを検証
func TestIntegration_UserGetOrCreate(t *testing.T) {
	router := newIntegrationRouter(t, config.UploadModePresign)

	var first, second userResponse
	code := doJSON(t, router, http.MethodGet, "/users/asd3fd2faec?email=doctor@example.com", "", &first)
	if code != http.StatusOK {
		t.Fatalf("first call: status = %d, want 200", code)
	}
	doJSON(t, router, http.MethodGet, "/users/asd3fd2faec?email=doctor@example.com", "", &second)

	if first.ID == "" || first.ID != second.ID {
		t.Errorf("get-or-create should be stable: %q vs %q", first.ID, second.ID)
	}
}
