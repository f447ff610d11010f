package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/plugkit/plugkit/pkg/extension"
)

// Error envelope messages. Internal failures deliberately carry a
// generic detail; the real cause only reaches the log.
const (
	msgBadRequest    = "Bad Request"
	msgValidation    = "Validation Error"
	msgNotFound      = "Not Found"
	msgInternal      = "Internal Server Error"
	detailInternal   = "an unexpected error occurred"
	statusValidation = http.StatusUnprocessableEntity
)

type errorEnvelope struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

type successEnvelope struct {
	Success bool           `json:"success"`
	Outputs map[string]any `json:"outputs"`
}

type validationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// executeRequest is the invocation request body. The capability name
// arrives in the URL path.
type executeRequest struct {
	Context *extension.ExecutionContext `json:"context"`
	Inputs  map[string]any              `json:"inputs"`
	Config  map[string]any              `json:"config"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, detail any) {
	writeJSON(w, status, errorEnvelope{Error: msg, Detail: detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"extension": s.ext.Name,
		"service":   "plugkit-extension-server",
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ext.Manifest())
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := make([]map[string]any, 0, len(s.ext.Nodes))
	for _, name := range s.reg.NodeNames() {
		n, err := s.reg.Node(name)
		if err != nil {
			continue
		}
		nodes = append(nodes, map[string]any{
			"name":        n.Name,
			"description": n.Description,
			"inputs":      n.Inputs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"extension": s.ext.Name,
		"nodes":     nodes,
	})
}

// handleValidateConfig checks an extension-level config payload
// against the declared shape. Invalid input is a negative validation
// result, never a transport error.
func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg map[string]any
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest, fmt.Sprintf("decoding config payload: %v", err))
		return
	}

	result := validationResult{Valid: true, Errors: []string{}}
	for _, fe := range s.ext.Config.Validate(cfg) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}

	writeJSON(w, http.StatusOK, result)
}

// handleExecuteNode drives the request lifecycle: route the capability
// name through the registry, validate and coerce the payload, bind the
// file service into the context, invoke, and normalize the outcome.
// No failure mode escapes the envelope.
func (s *Server) handleExecuteNode(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest, fmt.Sprintf("decoding request body: %v", err))
		return
	}

	// Routed
	node, err := s.reg.Node(name)
	if err != nil {
		s.log.Error("node lookup failed", "node", name, "error", err)
		writeError(w, http.StatusNotFound, msgNotFound, err.Error())
		return
	}

	// Coerced
	if fieldErrs := node.Config.Validate(req.Config); len(fieldErrs) > 0 {
		s.log.Error("node config validation failed", "node", name, "errors", len(fieldErrs))
		writeError(w, statusValidation, msgValidation, fieldErrs)
		return
	}
	inputs := CoerceInputs(node, req.Inputs)

	// ContextBound. The extension-level config travels inside the
	// context; the per-invocation node config is a separate document
	// and never stands in for it.
	ec := req.Context
	if ec == nil {
		ec = &extension.ExecutionContext{}
	}
	ec.BindFiles(s.files)

	// Invoked
	outputs, err := s.invoke(r, node, ec, inputs)
	if err != nil {
		s.log.Error("node execution failed", "node", name, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal, detailInternal)
		return
	}

	// Responded
	mapped, ok := outputs.(map[string]any)
	if !ok {
		mapped = map[string]any{"output": outputs}
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Outputs: mapped})
}

// invoke runs the node handler, converting panics into errors so a
// capability's internal fault can never crash the server process.
func (s *Server) invoke(r *http.Request, node *extension.Node, ec *extension.ExecutionContext, inputs map[string]any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("node %q panicked: %v", node.Name, rec)
		}
	}()
	return node.Invoke(r.Context(), ec, inputs)
}

// nodeConfigRequest is the body of a node-config request. The
// skip_cache flag travels as a query parameter.
type nodeConfigRequest struct {
	Context *extension.ExecutionContext `json:"context"`
	Config  map[string]any              `json:"config"`
}

// handleNodeConfig serves a node's configuration document. Nodes with
// a config hook compute it dynamically; the rest serve their declared
// shape.
func (s *Server) handleNodeConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	node, err := s.reg.Node(name)
	if err != nil {
		s.log.Error("node lookup failed", "node", name, "error", err)
		writeError(w, http.StatusNotFound, msgNotFound, err.Error())
		return
	}

	if node.GetConfig == nil {
		writeJSON(w, http.StatusOK, node.Config.Definition())
		return
	}

	var req nodeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, msgBadRequest, fmt.Sprintf("decoding request body: %v", err))
		return
	}

	ec := req.Context
	if ec == nil {
		ec = &extension.ExecutionContext{}
	}
	ec.BindFiles(s.files)

	skipCache, _ := strconv.ParseBool(r.URL.Query().Get("skip_cache"))
	cfg, err := s.nodeConfig(r, node, ec, req.Config, skipCache)
	if err != nil {
		s.log.Error("node config failed", "node", name, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal, detailInternal)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// nodeConfig runs the node's config hook under the same panic
// guarantee as invocation.
func (s *Server) nodeConfig(r *http.Request, node *extension.Node, ec *extension.ExecutionContext, config map[string]any, skipCache bool) (out map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("node %q config hook panicked: %v", node.Name, rec)
		}
	}()
	return node.GetConfig(r.Context(), ec, config, skipCache)
}

func (s *Server) handleIntegrationConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	integ, err := s.reg.Integration(name)
	if err != nil {
		s.log.Error("integration lookup failed", "integration", name, "error", err)
		writeError(w, http.StatusNotFound, msgNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, integ.Credentials.Definition())
}

func (s *Server) handleIntegrationReady(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	integ, err := s.reg.Integration(name)
	if err != nil {
		s.log.Error("integration lookup failed", "integration", name, "error", err)
		writeError(w, http.StatusNotFound, msgNotFound, err.Error())
		return
	}

	// An empty body means no credentials, which is "not ready" rather
	// than a malformed request.
	var creds map[string]any
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, msgBadRequest, fmt.Sprintf("decoding credentials payload: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, integ.IsReady(creds))
}
