package remotetest

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

func (s *Server) serveStorage(w http.ResponseWriter, r *http.Request, rest string) {
	switch {
	case strings.HasPrefix(rest, "public/") && r.Method == http.MethodGet:
		bucket, key := splitObject(strings.TrimPrefix(rest, "public/"))
		s.mu.Lock()
		public := s.buckets[bucket]
		o, ok := s.objects[bucket+"/"+key]
		s.mu.Unlock()
		if !public || !ok {
			writeError(w, http.StatusNotFound, "not_found", "Object not found")
			return
		}
		serveObject(w, o)

	case strings.HasPrefix(rest, "sign/") && r.Method == http.MethodGet:
		bucket, key := splitObject(strings.TrimPrefix(rest, "sign/"))
		s.mu.Lock()
		o, ok := s.objects[bucket+"/"+key]
		valid := r.URL.Query().Get("token") != ""
		s.mu.Unlock()
		if !ok || !valid {
			writeError(w, http.StatusBadRequest, "invalid_signature", "Invalid signature")
			return
		}
		serveObject(w, o)

	case strings.HasPrefix(rest, "sign/") && r.Method == http.MethodPost:
		if s.FailSign.Load() {
			writeError(w, http.StatusInternalServerError, "internal", "signing failed")
			return
		}
		subject, ok := s.subject(r)
		if !ok || subject == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid JWT")
			return
		}
		var body struct {
			ExpiresIn int64 `json:"expiresIn"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ExpiresIn <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "expiresIn is required")
			return
		}
		bucket, key := splitObject(strings.TrimPrefix(rest, "sign/"))
		s.mu.Lock()
		_, exists := s.objects[bucket+"/"+key]
		s.mu.Unlock()
		if !exists {
			writeError(w, http.StatusNotFound, "not_found", "Object not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"signedURL": "/object/sign/" + bucket + "/" + key + "?token=" + uuid.NewString(),
		})

	case r.Method == http.MethodPost || r.Method == http.MethodPut:
		s.upload(w, r, rest)

	default:
		writeError(w, http.StatusNotFound, "not_found", "no storage route")
	}
}

// upload stores an object. An account may only write under a prefix
// equal to its own id.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, rest string) {
	if s.FailUploads.Load() {
		writeError(w, http.StatusInternalServerError, "internal", "upload failed")
		return
	}
	subject, ok := s.subject(r)
	if !ok || subject == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid JWT")
		return
	}

	bucket, key := splitObject(rest)
	owner, _, _ := strings.Cut(key, "/")
	if owner != subject {
		writeError(w, http.StatusForbidden, "Unauthorized", "new row violates row-level security policy")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.buckets[bucket]; !known {
		writeError(w, http.StatusNotFound, "Bucket not found", "Bucket not found")
		return
	}
	if _, exists := s.objects[bucket+"/"+key]; exists && r.Header.Get("x-upsert") != "true" {
		writeError(w, http.StatusConflict, "Duplicate", "The resource already exists")
		return
	}
	s.objects[bucket+"/"+key] = object{data: data, contentType: r.Header.Get("Content-Type")}
	writeJSON(w, http.StatusOK, map[string]string{"Key": bucket + "/" + key})
}

func splitObject(path string) (bucket, key string) {
	bucket, key, _ = strings.Cut(path, "/")
	return bucket, key
}

func serveObject(w http.ResponseWriter, o object) {
	if o.contentType != "" {
		w.Header().Set("Content-Type", o.contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(o.data)
}
