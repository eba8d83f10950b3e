package errs

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// codes maps application error codes to http status codes.
var codes = map[string]int{
	EINVALID:      http.StatusBadRequest,
	ENOTFOUND:     http.StatusNotFound,
	EUNAUTHORIZED: http.StatusUnauthorized,
	EFORBIDDEN:    http.StatusForbidden,
	ECONFLICT:     http.StatusConflict,
	EINTERNAL:     http.StatusInternalServerError,
}

// StatusCode returns the http status code for an application error code.
func StatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

// Response is the json body written for any error.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
	Form   interface{}       `json:"form,omitempty"`
}

// ReturnError writes err as a json error response. Internal errors are logged
// and replaced by a generic message so that nothing internal leaks to the client.
func ReturnError(w http.ResponseWriter, r *http.Request, err error) {
	ReturnFormError(w, r, err, nil)
}

// ReturnFormError works like ReturnError but also echoes the submitted form values,
// so the client can render the form again with the prior input preserved.
func ReturnFormError(w http.ResponseWriter, r *http.Request, err error, form interface{}) {
	code, message := ErrorCode(err), ErrorMessage(err)
	if code == EINTERNAL {
		LogError(r, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(code))
	resp := Response{
		Error:  message,
		Fields: ErrorFields(err),
		Form:   form,
	}
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		LogError(r, err)
	}
}

// LogError logs an error with the http request context.
func LogError(r *http.Request, err error) {
	logrus.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Errorf("%+v", err)
}
