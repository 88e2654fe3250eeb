package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"google.golang.org/api/googleapi"
)

const maxErrorBody = 64 << 10

// WrapError annotates err with op and converts API errors to *common.HTTPError.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return fmt.Errorf("%s: %w", op, &common.HTTPError{StatusCode: gerr.Code, Body: body})
	}
	return fmt.Errorf("%s: %w", op, err)
}

// checkResponse returns a *common.HTTPError for non-2xx responses. The body
// is consumed in that case.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &common.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
}
