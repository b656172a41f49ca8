package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	terminal "github.com/ulic-youthlic/neomacs-term"
)

type fixedShellResolver struct {
	shell string
}

func (r fixedShellResolver) ResolveShell(terminal.Logger) string { return r.shell }

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()

	if cfg.ManagerConfig.Logger == nil {
		cfg.ManagerConfig.Logger = terminal.NopLogger{}
	}
	if cfg.ManagerConfig.ShellResolver == nil {
		cfg.ManagerConfig.ShellResolver = fixedShellResolver{shell: "/bin/sh"}
	}
	if cfg.ManagerConfig.ShellArgsProvider == nil {
		cfg.ManagerConfig.ShellArgsProvider = terminal.StaticShellArgsProvider{Args: []string{"-c", "cat"}}
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 10 * time.Millisecond
	}

	srv := New(cfg)
	t.Cleanup(srv.Close)

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return srv, httpSrv
}

func createTestSession(t *testing.T, httpSrv *httptest.Server) apiSessionInfo {
	t.Helper()

	resp, err := http.Post(httpSrv.URL+"/api/sessions", "application/json",
		bytes.NewBufferString(`{"cols":80,"rows":24}`))
	if err != nil {
		t.Fatalf("create session request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}

	var created apiSessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected non-zero session id")
	}
	return created
}

func contentText(payload *contentPayload) string {
	var b strings.Builder
	for _, cell := range payload.Cells {
		b.WriteString(cell.Char)
	}
	return b.String()
}

func TestServer_EndToEndWebsocketContent(t *testing.T) {
	_, httpSrv := newTestServer(t, Config{})
	created := createTestSession(t, httpSrv)

	idStr := strconv.FormatUint(uint64(created.ID), 10)
	wsURL := "ws" + httpSrv.URL[len("http"):] + "/ws?sessionId=" + idStr
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsConn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer wsConn.Close(websocket.StatusNormalClosure, "done")
	// Content snapshots for a full grid exceed the default 32 KiB read limit.
	wsConn.SetReadLimit(-1)

	// First message is the attach acknowledgment carrying the server-assigned
	// connection ID.
	_, msg, err := wsConn.Read(ctx)
	if err != nil {
		t.Fatalf("websocket read failed: %v", err)
	}
	var attached wsEvent
	if err := json.Unmarshal(msg, &attached); err != nil {
		t.Fatalf("invalid websocket json: %v", err)
	}
	if attached.Type != "attached" || attached.ConnID == "" {
		t.Fatalf("expected attached event with connId, got %+v", attached)
	}

	inputBody := bytes.NewBufferString(`{"connId":"` + attached.ConnID + `","input":"hello\n"}`)
	inputResp, err := http.Post(httpSrv.URL+"/api/sessions/"+idStr+"/input", "application/json", inputBody)
	if err != nil {
		t.Fatalf("send input failed: %v", err)
	}
	inputResp.Body.Close()
	if inputResp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected input status: %d", inputResp.StatusCode)
	}

	// Expect a content snapshot whose grid contains the echoed input.
	for {
		_, msg, err := wsConn.Read(ctx)
		if err != nil {
			t.Fatalf("websocket read failed: %v", err)
		}

		var evt wsEvent
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("invalid websocket json: %v", err)
		}
		if evt.Type != "content" || evt.Content == nil {
			continue
		}
		if strings.Contains(contentText(evt.Content), "hello") {
			return
		}
	}
}

func TestServer_TextExtractionEndpoint(t *testing.T) {
	_, httpSrv := newTestServer(t, Config{
		ManagerConfig: terminal.ManagerConfig{
			ShellResolver:     fixedShellResolver{shell: "/bin/sh"},
			ShellArgsProvider: terminal.StaticShellArgsProvider{Args: []string{"-c", "printf 'marker\\n'; cat"}},
		},
	})
	created := createTestSession(t, httpSrv)
	idStr := strconv.FormatUint(uint64(created.ID), 10)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(httpSrv.URL + "/api/sessions/" + idStr + "/text")
		if err != nil {
			t.Fatalf("text request failed: %v", err)
		}
		var out textResponse
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode text response failed: %v", err)
		}
		if strings.Contains(out.Text, "marker") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timeout waiting for text extraction to include shell output")
}

func TestServer_CreateRejectsInvalidDims(t *testing.T) {
	_, httpSrv := newTestServer(t, Config{})

	resp, err := http.Post(httpSrv.URL+"/api/sessions", "application/json",
		bytes.NewBufferString(`{"cols":10000,"rows":24}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized dims, got %d", resp.StatusCode)
	}
}

func TestServer_DestroySession(t *testing.T) {
	_, httpSrv := newTestServer(t, Config{})
	created := createTestSession(t, httpSrv)
	idStr := strconv.FormatUint(uint64(created.ID), 10)

	req, _ := http.NewRequest(http.MethodDelete, httpSrv.URL+"/api/sessions/"+idStr, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", resp.StatusCode)
	}

	getResp, err := http.Get(httpSrv.URL + "/api/sessions/" + idStr)
	if err != nil {
		t.Fatalf("get request failed: %v", err)
	}
	getResp.Body.Close()
	if getResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after destroy, got %d", getResp.StatusCode)
	}
}

func TestServer_InputRateLimit(t *testing.T) {
	_, httpSrv := newTestServer(t, Config{
		InputRateBytesPerSec: 1,
		InputBurstBytes:      8,
	})
	created := createTestSession(t, httpSrv)
	idStr := strconv.FormatUint(uint64(created.ID), 10)

	post := func(input string) int {
		body := bytes.NewBufferString(`{"connId":"c1","input":"` + input + `"}`)
		resp, err := http.Post(httpSrv.URL+"/api/sessions/"+idStr+"/input", "application/json", body)
		if err != nil {
			t.Fatalf("input request failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := post("aaaaaaaa"); status != http.StatusNoContent {
		t.Fatalf("expected first input to pass, got %d", status)
	}
	if status := post("bbbbbbbb"); status != http.StatusTooManyRequests {
		t.Fatalf("expected second input to be rate limited, got %d", status)
	}
}

func TestServer_HistoryReplay(t *testing.T) {
	_, httpSrv := newTestServer(t, Config{
		ManagerConfig: terminal.ManagerConfig{
			ShellResolver:     fixedShellResolver{shell: "/bin/sh"},
			ShellArgsProvider: terminal.StaticShellArgsProvider{Args: []string{"-c", "printf 'past\\n'; cat"}},
		},
	})
	created := createTestSession(t, httpSrv)
	idStr := strconv.FormatUint(uint64(created.ID), 10)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(httpSrv.URL + "/api/sessions/" + idStr + "/history")
		if err != nil {
			t.Fatalf("history request failed: %v", err)
		}
		var chunks []historyChunk
		err = json.NewDecoder(resp.Body).Decode(&chunks)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode history failed: %v", err)
		}
		if len(chunks) > 0 {
			if chunks[0].Sequence == 0 {
				t.Fatal("expected sequences to start at 1")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timeout waiting for history chunks")
}
