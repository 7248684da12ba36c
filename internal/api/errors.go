package api

import (
	"net/http"

	"github.com/go-chi/render"
)

// ErrResponse is the JSON error body.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errWithStatus(status int, err error) render.Renderer {
	resp := &ErrResponse{
		Err:            err,
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
	}
	if err != nil {
		resp.ErrorText = err.Error()
	}
	return resp
}

func errBadRequest(err error) render.Renderer { return errWithStatus(http.StatusBadRequest, err) }

func errUnprocessable(err error) render.Renderer {
	return errWithStatus(http.StatusUnprocessableEntity, err)
}

func errInternal(err error) render.Renderer {
	return errWithStatus(http.StatusInternalServerError, err)
}

var (
	errNotFound        = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Not Found"}
	errTooManyRequests = &ErrResponse{HTTPStatusCode: http.StatusTooManyRequests, StatusText: "Too Many Requests"}
	errUnavailable     = &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, StatusText: "Service Unavailable"}
)
