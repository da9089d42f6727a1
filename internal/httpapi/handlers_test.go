package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/assets"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/coordinator"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/hub"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/rollcache"
	"github.com/DoyleJ11/dnd-assistant-backend/internal/store/memstore"
)

const table = "table-7"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type env struct {
	srv *httptest.Server
	dir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := t.TempDir()
	disk, err := assets.NewDisk(dir, "/uploads", 1<<10)
	require.NoError(t, err)

	h := hub.NewHub(ctx, nil)
	co := coordinator.New(memstore.New(), h, rollcache.New(rollcache.DefaultCapacity), disk, coordinator.Options{})
	go func() { _ = co.Run(ctx) }()

	srv := httptest.NewServer(SetupRoutes(Deps{
		Coordinator:     co,
		Router:          h,
		UploadDir:       dir,
		UploadURLPrefix: "/uploads",
		MaxUploadBytes:  1 << 10,
		CORSOrigin:      "*",
	}))
	t.Cleanup(srv.Close)
	return &env{srv: srv, dir: dir}
}

func (e *env) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *env) upload(t *testing.T, sessionID, filename string, content []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.srv.URL+"/api/battlefield/sessions/"+sessionID+"/background", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	require.Equal(t, true, body["success"])
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "data is %T", body["data"])
	return d
}

const goblinRoster = `{"monsters":[
	{"id":"m1","name":"Goblin1","currentHp":7,"maxHp":7,"initiative":12},
	{"id":"m2","name":"Goblin2","currentHp":0,"maxHp":7,"initiative":15}]}`

func TestHealth(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestSession_NotFound(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(t, http.MethodGet, "/api/battles/sessions/"+table, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, codeNotFound, body["error"])
}

func TestSession_SaveAndGet(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(t, http.MethodPost, "/api/battles/sessions/"+table, goblinRoster)
	require.Equal(t, http.StatusOK, code)
	d := data(t, body)
	assert.Equal(t, []any{"m2", "m1"}, d["monsterOrder"], "order derived from initiative")

	code, body = e.do(t, http.MethodGet, "/api/battles/sessions/"+table, "")
	require.Equal(t, http.StatusOK, code)
	d = data(t, body)
	assert.EqualValues(t, 1, d["activeMonsters"])
	assert.EqualValues(t, 2, d["totalMonsters"])

	code, body = e.do(t, http.MethodGet, "/api/battles/sessions", "")
	require.Equal(t, http.StatusOK, code)
	list, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestSession_ValidationError(t *testing.T) {
	e := newEnv(t)
	code, body := e.do(t, http.MethodPost, "/api/battles/sessions/"+table, `{"monsterOrder":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "monsters", body["field"])
	assert.NotEmpty(t, body["message"])

	code, _ = e.do(t, http.MethodPost, "/api/battles/sessions/"+table, `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSession_HPClamp(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/api/battles/sessions/"+table, goblinRoster)
	require.Equal(t, http.StatusOK, code)

	hp := "/api/battles/sessions/" + table + "/monsters/m1/hp"
	code, body := e.do(t, http.MethodPost, hp, `{"delta":-10}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, data(t, body)["currentHp"])

	code, body = e.do(t, http.MethodPost, hp, `{"currentHp":99}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 7, data(t, body)["currentHp"])

	code, _ = e.do(t, http.MethodPost, "/api/battles/sessions/"+table+"/monsters/ghost/hp", `{"delta":1}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSession_Delete(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/api/battles/sessions/"+table, goblinRoster)
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodDelete, "/api/battles/sessions/"+table, "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodDelete, "/api/battles/sessions/"+table, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBattlefield_SettingsIdempotent(t *testing.T) {
	e := newEnv(t)
	path := "/api/battlefield/sessions/" + table + "/settings"
	body := `{"settings":{"gridSize":75,"showGrid":false}}`

	code, _ := e.do(t, http.MethodPost, path, body)
	assert.Equal(t, http.StatusNotFound, code, "settings need an existing session")

	code, _ = e.do(t, http.MethodPost, "/api/battles/sessions/"+table, `{"monsters":[]}`)
	require.Equal(t, http.StatusOK, code)

	for i := 0; i < 2; i++ {
		code, resp := e.do(t, http.MethodPost, path, body)
		require.Equal(t, http.StatusOK, code)
		d := data(t, resp)
		assert.EqualValues(t, 75, d["gridSize"])
		assert.Equal(t, false, d["showGrid"])
	}
}

func TestBattlefield_BackgroundUpload(t *testing.T) {
	e := newEnv(t)
	code, _ := e.do(t, http.MethodPost, "/api/battles/sessions/"+table, `{"monsters":[]}`)
	require.Equal(t, http.StatusOK, code)

	code, body := e.upload(t, table, "map.png", pngHeader)
	require.Equal(t, http.StatusOK, code)
	ref, _ := data(t, body)["imageUrl"].(string)
	require.True(t, strings.HasPrefix(ref, "/uploads/"), ref)

	resp, err := http.Get(e.srv.URL + ref)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "asset is served")

	code, body = e.upload(t, table, "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, codeInvalidUpload, body["error"])

	code, _ = e.upload(t, table, "huge.png", append(pngHeader, make([]byte, 2<<10)...))
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)

	code, _ = e.do(t, http.MethodDelete, "/api/battlefield/sessions/"+table+"/background", "")
	require.Equal(t, http.StatusOK, code)
	_, err = os.Stat(filepath.Join(e.dir, filepath.Base(ref)))
	assert.True(t, os.IsNotExist(err), "cleared background file removed")
}

func TestBattlefield_UploadToMissingSession(t *testing.T) {
	e := newEnv(t)
	code, _ := e.upload(t, "nobody", "map.png", pngHeader)
	assert.Equal(t, http.StatusNotFound, code)

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "orphaned upload removed")
}

func TestDice_HistoryLimitAndStats(t *testing.T) {
	e := newEnv(t)
	path := "/api/dice/sessions/" + table
	for i := 1; i <= 5; i++ {
		code, _ := e.do(t, http.MethodPost, path, fmt.Sprintf(`{"playerName":"Ana","rollData":{"dice":[{"type":"d20","value":%d}]}}`, i))
		require.Equal(t, http.StatusOK, code)
	}

	code, body := e.do(t, http.MethodGet, path+"?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, body["total"])
	assert.EqualValues(t, 2, body["limit"])
	assert.Len(t, body["data"], 2)

	code, body = e.do(t, http.MethodGet, path+"?limit=abc", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, coordinator.DefaultHistoryLimit, body["limit"])

	code, body = e.do(t, http.MethodGet, path+"/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, data(t, body)["totalRolls"])

	code, _ = e.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, code)
	_, body = e.do(t, http.MethodGet, path, "")
	assert.EqualValues(t, 0, body["total"])

	code, _ = e.do(t, http.MethodGet, "/api/dice/sessions/nobody", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCORS_Preflight(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodOptions, e.srv.URL+"/api/dice/sessions/"+table, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
