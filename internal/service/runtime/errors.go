package runtime

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const maxErrorBody = 4096

// StatusError is a non-2xx answer of an agent or history server.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Detail)
}

// CheckResponse turns a non-2xx response into a *StatusError and closes its
// body. A nil error means the caller owns resp.Body.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return errors.WithStack(&StatusError{Code: resp.StatusCode, Detail: errorDetail(body)})
}

// errorDetail extracts a human readable message from an error payload.
func errorDetail(body []byte) string {
	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, path := range []string{"message", "detail", "error", "__error__.message", "__error__.error"} {
			if v := parsed.Get(path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}
