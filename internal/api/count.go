package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/element-counter/internal/counter"
)

const (
	messageMethodNotAllowed = "Method not allowed"
	messageInvalidBody      = "Invalid request body"
	maxBodyBytes            = 64 << 10
)

type countRequest struct {
	URL     string `json:"url"`
	Element string `json:"element"`
}

// CountResponse is the success payload of POST /count.
type CountResponse struct {
	Success  bool          `json:"success"`
	URL      string        `json:"url"`
	Fetched  string        `json:"fetched"`
	Duration int64         `json:"duration"`
	Count    int           `json:"count"`
	Stats    counter.Stats `json:"stats"`
}

// FailureResponse carries a user-facing failure message.
type FailureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewCountResponse renders a pipeline result in the wire shape, with the
// fetched timestamp in loc.
func NewCountResponse(res counter.Result, loc *time.Location) CountResponse {
	return CountResponse{
		Success:  true,
		URL:      res.URL,
		Fetched:  res.Fetched(loc),
		Duration: res.DurationMS,
		Count:    res.Count,
		Stats:    res.Stats,
	}
}

// NewFailureResponse renders err as its user-facing failure payload.
func NewFailureResponse(err error) FailureResponse {
	return FailureResponse{Success: false, Message: counter.UserMessage(err)}
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCountRequest(w, r)
	if err != nil {
		s.logger.Debug("undecodable count request", zap.Error(err))
		writeFailure(s.logger, w, http.StatusBadRequest, messageInvalidBody)
		return
	}

	res, err := s.counter.Count(r.Context(), req.URL, req.Element)
	if err != nil {
		writeJSON(s.logger, w, failureStatus(err), NewFailureResponse(err))
		return
	}
	writeJSON(s.logger, w, http.StatusOK, NewCountResponse(res, s.loc))
}

func decodeCountRequest(w http.ResponseWriter, r *http.Request) (countRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req countRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return countRequest{}, err
		}
		return req, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return countRequest{}, err
		}
	} else if err := r.ParseForm(); err != nil {
		return countRequest{}, err
	}
	return countRequest{
		URL:     r.PostFormValue("url"),
		Element: r.PostFormValue("element"),
	}, nil
}

// failureStatus keeps validation and fetch failures on 200 so the page shell can
// read the body; only store failures are server errors.
func failureStatus(err error) int {
	if counter.IsValidation(err) || errors.Is(err, counter.ErrFetchFailed) {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}
