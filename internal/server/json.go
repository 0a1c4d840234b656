package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/koustreak/djcore/internal/core"
	"github.com/koustreak/djcore/internal/errs"
)

// maxBodyBytes bounds statement request bodies.
const maxBodyBytes = 1 << 20

// statementRequest is the body of /execute and /fetch.
type statementRequest struct {
	Query string `json:"query"`
	Args  []any  `json:"args"`
	Limit int    `json:"limit"` // fetch only; 0 means every row
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  int32  `json:"code,omitempty"`
}

func decodeStatement(w http.ResponseWriter, r *http.Request) (*statementRequest, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var req statementRequest
	if err := dec.Decode(&req); err != nil {
		return nil, errs.Wrap(errs.ErrKindArgument, "invalid request body", err)
	}
	if req.Query == "" {
		return nil, errs.New(errs.ErrKindArgument, "query is required")
	}
	if req.Limit < 0 {
		return nil, errs.New(errs.ErrKindArgument, "limit must not be negative")
	}
	args := make([]any, len(req.Args))
	for i, a := range req.Args {
		v, err := jsonArg(a)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindArgument, fmt.Sprintf("argument %d", i+1), err)
		}
		args[i] = v
	}
	req.Args = args
	return &req, nil
}

// jsonArg converts a decoded JSON value into a statement argument. Whole
// numbers become int64 and are range-checked when bound; other numbers
// become float64.
func jsonArg(a any) (any, error) {
	switch x := a.(type) {
	case nil, string:
		return x, nil
	case bool:
		return core.Bool(x), nil
	case json.Number:
		if n, err := strconv.ParseInt(x.String(), 10, 64); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: JSON %T", errs.ErrUnsupportedArgumentType, a)
}

// jsonValue renders a decoded column for a response. Bytes marshal as
// base64; a column that failed to decode becomes {"error": "..."}.
func jsonValue(v core.Value) any {
	if f, ok := v.(core.DecodeFailure); ok {
		return map[string]string{"error": f.Err.Error()}
	}
	return v.Interface()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, fields)
	} else {
		s.log.DebugWith("request rejected: "+err.Error(), fields)
	}
	kind := errs.KindOf(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String(), Code: errs.CodeOf(err)})
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindArgument, errs.ErrKindDecode, errs.ErrKindInvalidNativeType:
		return http.StatusBadRequest
	case errs.ErrKindNotFound, errs.ErrKindRowNotFound, errs.ErrKindColumnNotFound, errs.ErrKindColumnIndexOutOfBounds:
		return http.StatusNotFound
	case errs.ErrKindQuery:
		return http.StatusUnprocessableEntity
	case errs.ErrKindAlreadyConnected:
		return http.StatusConflict
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotConnected, errs.ErrKindConnection, errs.ErrKindPoolClosed, errs.ErrKindPoolTimeout:
		return http.StatusServiceUnavailable
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
