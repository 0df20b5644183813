package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/infra/logging"
	"comfy-gateway/internal/usecase"
)

var promptParams = map[string]bool{
	"prompt":          true,
	"negative_prompt": true,
	"workflow":        true,
	"image":           true,
}

type jobRequest struct {
	PromptID string `json:"prompt_id"`
}

type credentialsRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	PasswordRepeat string `json:"password_repeat"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	names, err := s.gen.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeData(w, http.StatusOK, map[string]any{"workflows": names})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var (
		req usecase.QueueRequest
		err error
	)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		req, err = s.parseMultipartPrompt(r)
	} else {
		req, err = parseJSONPrompt(r.Body)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := s.gen.Queue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"prompt_id": id})
}

func parseJSONPrompt(body io.Reader) (usecase.QueueRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return usecase.QueueRequest{}, fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	if err := checkParams(keys); err != nil {
		return usecase.QueueRequest{}, err
	}

	var req usecase.QueueRequest
	fields := map[string]*string{
		"prompt":          &req.Prompt,
		"negative_prompt": &req.NegativePrompt,
		"workflow":        &req.Workflow,
	}
	for k, dst := range fields {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return req, fmt.Errorf("%w: %s must be a string", domain.ErrInvalidArgument, k)
		}
	}
	// JSON callers send the image base64 encoded.
	if v, ok := raw["image"]; ok {
		var enc string
		if err := json.Unmarshal(v, &enc); err != nil {
			return req, fmt.Errorf("%w: image must be a base64 string", domain.ErrInvalidArgument)
		}
		if enc != "" {
			img, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return req, fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidArgument)
			}
			req.Image = img
		}
	}
	return req, nil
}

func (s *Server) parseMultipartPrompt(r *http.Request) (usecase.QueueRequest, error) {
	var req usecase.QueueRequest
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	form := r.MultipartForm
	keys := make([]string, 0, len(form.Value)+len(form.File))
	for k := range form.Value {
		keys = append(keys, k)
	}
	for k := range form.File {
		keys = append(keys, k)
	}
	if err := checkParams(keys); err != nil {
		return req, err
	}

	req.Prompt = r.FormValue("prompt")
	req.NegativePrompt = r.FormValue("negative_prompt")
	req.Workflow = r.FormValue("workflow")

	f, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return req, fmt.Errorf("%w: image: %v", domain.ErrInvalidArgument, err)
	default:
		defer f.Close()
		if req.Image, err = io.ReadAll(f); err != nil {
			return req, fmt.Errorf("%w: read image: %v", domain.ErrInvalidArgument, err)
		}
	}
	return req, nil
}

// checkParams rejects parameters outside promptParams and names them.
func checkParams(keys []string) error {
	var unknown []string
	for _, k := range keys {
		if !promptParams[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: invalid params: %s", domain.ErrInvalidArgument, strings.Join(unknown, ", "))
}

func decodeJob(r *http.Request) (string, error) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument)
	}
	if req.PromptID == "" {
		return "", fmt.Errorf("%w: prompt_id is required", domain.ErrInvalidArgument)
	}
	return req.PromptID, nil
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := decodeJob(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := logging.WithPromptID(r.Context(), id)
	p, err := s.gen.Progress(ctx, id)
	if err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeData(w, http.StatusOK, map[string]float64{"progress": p})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := decodeJob(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := logging.WithPromptID(r.Context(), id)
	link, err := s.gen.FetchImage(ctx, id)
	if err != nil {
		writeError(w, r.WithContext(ctx), err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"image_url": link})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.auth.Signup(r.Context(), req.Username, req.Password, req.PasswordRepeat)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": u.ID, "username": u.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pair, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	access, err := s.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	tok, err := BearerToken(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.Check(r.Context(), tok)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": u.ID, "username": u.Username})
}
