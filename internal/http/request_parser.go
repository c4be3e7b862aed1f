package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 64 << 10
)

var (
	errInvalidDate = errors.New("date must be YYYY-MM-DD")
	errInvalidBool = errors.New("must be true or false")
	errEmptyBody   = errors.New("request body is empty")
)

// parseAsOf reads the "date" query parameter, defaulting to today.
func parseAsOf(query url.Values, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(query.Get("date"))
	if v == "" {
		return core.DateOf(now), nil
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidDate, v)
	}
	return d, nil
}

// parseBool reads an optional boolean query parameter.
func parseBool(query url.Values, key string, def bool) (bool, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s %w", key, errInvalidBool)
	}
	return b, nil
}

// decodeJSON decodes a size-limited JSON body into dst, rejecting unknown
// fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}
