package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/plugkit/plugkit/pkg/extension"
)

// newTestServer builds a server around a small demo extension and
// returns it with its httptest host.
func newTestServer(t *testing.T, mutate func(*extension.Extension)) (*Server, *httptest.Server) {
	t.Helper()

	ext := &extension.Extension{
		Name:    "demo",
		Version: "1.0.0",
		Config: extension.Schema{Fields: []extension.Field{
			{Name: "workspace", Type: extension.FieldString, Required: true},
		}},
		Nodes: []*extension.Node{
			{
				Name: "echo",
				Inputs: []extension.InputSpec{
					{Name: "document", Type: extension.InputTypeFile},
				},
				Config: extension.Schema{Fields: []extension.Field{
					{Name: "mode", Type: extension.FieldString, Required: true},
				}},
				Call: func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
					return map[string]any{"echoed": inputs}, nil
				},
				GetConfig: func(ctx context.Context, ec *extension.ExecutionContext, config map[string]any, skipCache bool) (map[string]any, error) {
					out := map[string]any{
						"modes":      []string{"fast", "slow"},
						"skip_cache": skipCache,
					}
					for k, v := range config {
						out[k] = v
					}
					return out, nil
				},
			},
			{
				Name: "scalar",
				Call: func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
					return 42, nil
				},
			},
			{
				Name: "boom",
				Call: func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
					panic("secret internal state")
				},
			},
			{
				Name: "fail",
				Call: func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
					return nil, errors.New("secret database password leaked")
				},
			},
			{
				Name: "slow",
				Mode: extension.ModeSuspending,
				CallContext: func(ctx context.Context, ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					default:
						return map[string]any{"mode": "suspending"}, nil
					}
				},
			},
		},
		Integrations: []*extension.Integration{
			{
				Type:        "drive",
				DisplayName: "Drive",
				Credentials: extension.Schema{Fields: []extension.Field{
					{Name: "token", Type: extension.FieldString, Required: true},
				}},
			},
		},
	}

	if mutate != nil {
		mutate(ext)
	}

	srv, err := New(ext, Options{Files: &stubFileService{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

type stubFileService struct{}

func (s *stubFileService) Fetch(ctx context.Context, f *extension.File) ([]byte, error) {
	return []byte("stub"), nil
}

func (s *stubFileService) Upload(ctx context.Context, req extension.UploadRequest) (*extension.UploadResult, error) {
	return &extension.UploadResult{ID: "u1", URI: "spot://u1"}, nil
}

// postJSON sends body to path and decodes the JSON response into out.
func postJSON(t *testing.T, ts *httptest.Server, path string, body any, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response from %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func execBody(config map[string]any, inputs map[string]any) map[string]any {
	return map[string]any{
		"context": map[string]any{"config": config, "group_id": "g1"},
		"inputs":  inputs,
		"config":  config,
	}
}

func TestExecuteSuccess(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Success bool           `json:"success"`
		Outputs map[string]any `json:"outputs"`
	}
	status := postJSON(t, ts, "/nodes/echo/execute",
		execBody(map[string]any{"mode": "fast"}, map[string]any{"text": "hi"}), &out)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !out.Success {
		t.Error("success = false")
	}
	echoed, ok := out.Outputs["echoed"].(map[string]any)
	if !ok || echoed["text"] != "hi" {
		t.Errorf("outputs = %v", out.Outputs)
	}
}

func TestExecuteWrapsScalarOutput(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Success bool           `json:"success"`
		Outputs map[string]any `json:"outputs"`
	}
	status := postJSON(t, ts, "/nodes/scalar/execute", execBody(nil, nil), &out)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if out.Outputs["output"] != float64(42) {
		t.Errorf("outputs = %v, want scalar wrapped under output", out.Outputs)
	}
}

func TestExecuteSuspendingNode(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Success bool           `json:"success"`
		Outputs map[string]any `json:"outputs"`
	}
	status := postJSON(t, ts, "/nodes/slow/execute", execBody(nil, nil), &out)

	if status != http.StatusOK || out.Outputs["mode"] != "suspending" {
		t.Errorf("status = %d outputs = %v", status, out.Outputs)
	}
}

func TestExecuteUnknownNodeListsKnownNames(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	status := postJSON(t, ts, "/nodes/missing/execute", execBody(nil, nil), &out)

	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	for _, name := range []string{"boom", "echo", "fail", "scalar", "slow"} {
		if !strings.Contains(out.Detail, name) {
			t.Errorf("detail %q does not list registered node %q", out.Detail, name)
		}
	}
}

func TestExecuteConfigValidationError(t *testing.T) {
	handlerCalled := false
	_, ts := newTestServer(t, func(ext *extension.Extension) {
		ext.Nodes[0].Call = func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
			handlerCalled = true
			return nil, nil
		}
	})

	var out struct {
		Error  string `json:"error"`
		Detail []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	// "mode" is required by the echo node's config schema.
	status := postJSON(t, ts, "/nodes/echo/execute", execBody(map[string]any{}, nil), &out)

	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
	if len(out.Detail) != 1 || out.Detail[0].Field != "mode" {
		t.Errorf("detail = %+v, want per-field detail for mode", out.Detail)
	}
	if handlerCalled {
		t.Error("handler was called despite config validation failure")
	}
}

func TestExecutePanicYieldsGenericInternalError(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	status := postJSON(t, ts, "/nodes/boom/execute", execBody(nil, nil), &out)

	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if strings.Contains(out.Detail, "secret") {
		t.Errorf("detail %q leaks internal state", out.Detail)
	}

	// The server must keep answering after a handler panic.
	var health map[string]string
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health after panic: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}
}

func TestExecuteHandlerErrorYieldsGenericInternalError(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	status := postJSON(t, ts, "/nodes/fail/execute", execBody(nil, nil), &out)

	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if strings.Contains(out.Detail, "password") {
		t.Errorf("detail %q leaks the handler's error", out.Detail)
	}
}

func TestExecuteCoercesFileInputs(t *testing.T) {
	var gotDocument any
	_, ts := newTestServer(t, func(ext *extension.Extension) {
		ext.Nodes[0].Call = func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
			gotDocument = inputs["document"]
			return map[string]any{}, nil
		}
	})

	body := execBody(map[string]any{"mode": "fast"}, map[string]any{
		"document": map[string]any{"id": "f1", "uri": "spot://f1", "name": "a.pdf"},
	})
	if status := postJSON(t, ts, "/nodes/echo/execute", body, nil); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	f, ok := gotDocument.(*extension.File)
	if !ok {
		t.Fatalf("document input = %T, want *extension.File", gotDocument)
	}
	if f.ID != "f1" || f.Name != "a.pdf" {
		t.Errorf("file = %+v", f)
	}
}

func TestExecuteBindsFileService(t *testing.T) {
	var content []byte
	_, ts := newTestServer(t, func(ext *extension.Extension) {
		ext.Nodes[0].Call = func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
			f := &extension.File{ID: "f1", URI: "spot://f1"}
			var err error
			content, err = f.Content(context.Background(), ec)
			return map[string]any{}, err
		}
	})

	body := execBody(map[string]any{"mode": "fast"}, nil)
	if status := postJSON(t, ts, "/nodes/echo/execute", body, nil); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if string(content) != "stub" {
		t.Errorf("content = %q, want the injected service's bytes", content)
	}
}

func TestExecuteMalformedBody(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/nodes/echo/execute", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestExecuteLeavesContextConfigUnset(t *testing.T) {
	configSeen := false
	var gotConfig map[string]any
	_, ts := newTestServer(t, func(ext *extension.Extension) {
		ext.Nodes[0].Call = func(ec *extension.ExecutionContext, inputs map[string]any) (any, error) {
			configSeen = true
			gotConfig = ec.Config
			return map[string]any{}, nil
		}
	})

	// The context carries no extension-level config; the node's own
	// config document must not stand in for it.
	body := map[string]any{
		"context": map[string]any{"group_id": "g1"},
		"inputs":  map[string]any{},
		"config":  map[string]any{"mode": "fast"},
	}
	if status := postJSON(t, ts, "/nodes/echo/execute", body, nil); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !configSeen {
		t.Fatal("handler was not called")
	}
	if gotConfig != nil {
		t.Errorf("ec.Config = %v, want nil when the context omits config", gotConfig)
	}
}

func TestNodeConfigHook(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out map[string]any
	status := postJSON(t, ts, "/nodes/echo/config?skip_cache=true", map[string]any{
		"context": map[string]any{"group_id": "g1"},
		"config":  map[string]any{"mode": "fast"},
	}, &out)

	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if out["mode"] != "fast" {
		t.Errorf("config = %v, want the caller's document merged in", out)
	}
	if out["skip_cache"] != true {
		t.Errorf("config = %v, want skip_cache observed from the query", out)
	}
	if _, ok := out["modes"]; !ok {
		t.Errorf("config = %v, want the hook's dynamic options", out)
	}
}

func TestNodeConfigStaticFallback(t *testing.T) {
	_, ts := newTestServer(t, nil)

	// scalar declares no config hook; its declared shape comes back.
	var out map[string]any
	if status := postJSON(t, ts, "/nodes/scalar/config", map[string]any{}, &out); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if _, ok := out["fields"]; !ok {
		t.Errorf("config = %v, want the declared field list", out)
	}
}

func TestNodeConfigUnknownNode(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Detail string `json:"detail"`
	}
	if status := postJSON(t, ts, "/nodes/missing/config", map[string]any{}, &out); status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if !strings.Contains(out.Detail, "echo") {
		t.Errorf("detail %q does not list registered nodes", out.Detail)
	}
}

func TestNodeConfigHookPanicYieldsGenericInternalError(t *testing.T) {
	_, ts := newTestServer(t, func(ext *extension.Extension) {
		ext.Nodes[0].GetConfig = func(ctx context.Context, ec *extension.ExecutionContext, config map[string]any, skipCache bool) (map[string]any, error) {
			panic("secret lookup state")
		}
	})

	var out struct {
		Detail string `json:"detail"`
	}
	if status := postJSON(t, ts, "/nodes/echo/config", map[string]any{}, &out); status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if strings.Contains(out.Detail, "secret") {
		t.Errorf("detail %q leaks internal state", out.Detail)
	}
}

func TestValidateConfig(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var out struct {
		Valid  bool     `json:"valid"`
		Errors []string `json:"errors"`
	}

	if status := postJSON(t, ts, "/validate-config", map[string]any{"workspace": "w"}, &out); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !out.Valid || len(out.Errors) != 0 {
		t.Errorf("result = %+v, want valid", out)
	}

	if status := postJSON(t, ts, "/validate-config", map[string]any{}, &out); status != http.StatusOK {
		t.Fatalf("status = %d, want 200 for an invalid config", status)
	}
	if out.Valid || len(out.Errors) != 1 || !strings.Contains(out.Errors[0], "workspace") {
		t.Errorf("result = %+v, want invalid with workspace error", out)
	}
}

func TestManifestEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/manifest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var m struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Nodes   []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.Name != "demo" || m.Version != "1.0.0" || len(m.Nodes) != 5 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestListNodes(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/nodes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out struct {
		Extension string `json:"extension"`
		Nodes     []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Extension != "demo" || len(out.Nodes) != 5 {
		t.Errorf("nodes = %+v", out)
	}
}

func TestIntegrationConfig(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var def map[string]any
	if status := postJSON(t, ts, "/integrations/drive/config", nil, &def); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if _, ok := def["fields"]; !ok {
		t.Errorf("definition = %v, want credential fields", def)
	}

	var out struct {
		Detail string `json:"detail"`
	}
	if status := postJSON(t, ts, "/integrations/slack/config", nil, &out); status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if !strings.Contains(out.Detail, "drive") {
		t.Errorf("detail %q does not list known integrations", out.Detail)
	}
}

func TestIntegrationReady(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var ready bool
	if status := postJSON(t, ts, "/integrations/drive/ready", map[string]any{"token": "t"}, &ready); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if !ready {
		t.Error("ready = false for valid credentials")
	}

	if status := postJSON(t, ts, "/integrations/drive/ready", map[string]any{}, &ready); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if ready {
		t.Error("ready = true for credentials missing a required field")
	}
}

func TestNewRejectsDuplicateCapabilities(t *testing.T) {
	ext := &extension.Extension{
		Name:    "demo",
		Version: "1.0.0",
		Nodes: []*extension.Node{
			{Name: "echo"},
			{Name: "echo"},
		},
	}

	if _, err := New(ext, Options{Files: &stubFileService{}}); err == nil {
		t.Fatal("New accepted duplicate node names, want load-time error")
	} else if !strings.Contains(err.Error(), "echo") {
		t.Errorf("error %q does not name the duplicate", err)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}
