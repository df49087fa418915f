package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// MaxJSONBody caps API request bodies. Uploads are multipart and have
// their own limit.
const MaxJSONBody = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON reads exactly one JSON value from the body into dest
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxJSONBody))
	if err := dec.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("invalid JSON: body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON: unexpected data after the request object")
	}
	return nil
}

// ReadJSON decodes the body into dest, writing a 400 and returning false on failure
func ReadJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := DecodeJSON(w, r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParseAndValidate is ReadJSON followed by the validate struct tags of dest
func ParseAndValidate(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if !ReadJSON(w, r, dest) {
		return false
	}
	if err := validate.Struct(dest); err != nil {
		WriteValidationError(w, ValidationMessage(err))
		return false
	}
	return true
}

// ValidationMessage renders validator errors as a short client-facing message
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

// PathID parses the positive integer route variable key. It writes a 400 and
// returns false when the variable is missing, malformed or not positive.
func PathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	raw, ok := mux.Vars(r)[key]
	if !ok || raw == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		WriteBadRequest(w, fmt.Sprintf("invalid %s: %s", key, raw))
		return 0, false
	}
	return id, true
}

// Page is a limit/offset window over a listing
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads ?limit= and ?offset=. A missing limit is defaultLimit and
// a larger one is clamped to maxLimit.
func ParsePage(r *http.Request, defaultLimit, maxLimit int) (Page, error) {
	q := r.URL.Query()
	page := Page{Limit: defaultLimit}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Page{}, errors.New("invalid limit")
		}
		page.Limit = n
	}
	if page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Page{}, errors.New("invalid offset")
		}
		page.Offset = n
	}
	return page, nil
}
