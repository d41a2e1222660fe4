package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	dErrors "registry/pkg/domain-errors"
)

// decodeValue decodes the JSON body keeping numbers as json.Number.
func decodeValue(r *http.Request) (any, error) {
	var v any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, dErrors.New(dErrors.CodeTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			return nil, dErrors.New(dErrors.CodeBadRequest, "missing request body")
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body")
	}
	return v, nil
}

// decodeObject decodes a JSON object body. An empty body yields nil unless required.
func decodeObject(r *http.Request, required bool) (map[string]any, error) {
	v, err := decodeValue(r)
	if err != nil {
		if !required && dErrors.Is(err, dErrors.CodeBadRequest) && r.ContentLength <= 0 {
			return nil, nil
		}
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object")
	}
	return obj, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s [%s]", key, v)
	}
	return b, nil
}

// pageParams reads offset and limit; an absent limit is defaultLimit.
func pageParams(q url.Values, defaultLimit int) (offset, limit int, err error) {
	offset, err = intParam(q, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = intParam(q, "limit", defaultLimit)
	return offset, limit, err
}

func intParam(q url.Values, key string, fallback int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s [%s]", key, v)
	}
	return n, nil
}
