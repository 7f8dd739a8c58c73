package apis

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/alwitt/rentalhub/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ErrorDetail in case of REST error, the response
type ErrorDetail struct {
	// Code is the response code
	Code int `json:"code" validate:"required"`
	// Msg is an optional descriptive message
	Msg string `json:"message,omitempty"`
	// Detail is an optional descriptive message providing additional details on the error
	Detail string `json:"detail,omitempty"`
}

// RestAPIBaseResponse standard REST API response
type RestAPIBaseResponse struct {
	// Success indicates whether the request was successful
	Success bool `json:"success" validate:"required"`
	// RequestID gives the request ID to match against logs
	RequestID string `json:"request_id" validate:"required"`
	// Error are details in case of errors
	Error *ErrorDetail `json:"error,omitempty"`
}

// ========================================================================================
// MethodHandlers DICT of method-endpoint handler
type MethodHandlers map[string]http.HandlerFunc

// RegisterPathPrefix Register new method handler for an end-point
func RegisterPathPrefix(
	parentRouter *mux.Router, pathPrefix string, methodHandlers MethodHandlers,
) *mux.Router {
	router := parentRouter.PathPrefix(pathPrefix).Subrouter()
	for method, handler := range methodHandlers {
		router.Methods(method).Path("").HandlerFunc(handler)
	}
	return router
}

// ========================================================================================

// APIRestHandler base REST handler
type APIRestHandler struct {
	common.Component
	// requestIDHeader is the request header carrying the caller's request ID
	requestIDHeader string
	// doNotLogHeaders are headers never written into the logs
	doNotLogHeaders map[string]bool
}

// getAPIRestHandler define the base REST handler
func getAPIRestHandler(logTags log.Fields, config *common.HTTPConfig) APIRestHandler {
	doNotLog := map[string]bool{}
	for _, header := range config.Logging.DoNotLogHeaders {
		doNotLog[http.CanonicalHeaderKey(header)] = true
	}
	requestIDHeader := config.Logging.RequestIDHeader
	if requestIDHeader == "" {
		requestIDHeader = "Rentalhub-Request-ID"
	}
	return APIRestHandler{
		Component:       common.Component{LogTags: logTags},
		requestIDHeader: requestIDHeader,
		doNotLogHeaders: doNotLog,
	}
}

// ReadRequestIDFromContext read the request ID attached to the request context
func (h APIRestHandler) ReadRequestIDFromContext(ctxt context.Context) string {
	if v, ok := ctxt.Value(common.RequestParam{}).(common.RequestParam); ok {
		return v.ID
	}
	return ""
}

// GetStdRESTSuccessMsg define a standard success message
func (h APIRestHandler) GetStdRESTSuccessMsg(ctxt context.Context) RestAPIBaseResponse {
	return RestAPIBaseResponse{Success: true, RequestID: h.ReadRequestIDFromContext(ctxt)}
}

// GetStdRESTErrorMsg define a standard error message
func (h APIRestHandler) GetStdRESTErrorMsg(
	ctxt context.Context, code int, message string, detail string,
) RestAPIBaseResponse {
	return RestAPIBaseResponse{
		Success:   false,
		RequestID: h.ReadRequestIDFromContext(ctxt),
		Error:     &ErrorDetail{Code: code, Msg: message, Detail: detail},
	}
}

// WriteRESTResponse write a REST response
func (h APIRestHandler) WriteRESTResponse(
	w http.ResponseWriter, respCode int, resp interface{}, headers map[string]string,
) error {
	w.Header().Set("content-type", "application/json")
	for name, value := range headers {
		w.Header().Set(name, value)
	}
	t, err := json.Marshal(resp)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	w.WriteHeader(respCode)
	if _, err = w.Write(t); err != nil {
		return err
	}
	return nil
}

// Write logging support
func (h APIRestHandler) Write(p []byte) (n int, err error) {
	log.WithFields(h.LogTags).Infof("%s", p)
	return len(p), nil
}

// AttachRequestID middleware function to attach a request ID to a API request. The
// request ID is echoed back in the response header.
func (h APIRestHandler) AttachRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// use provided request id from incoming request if any
		reqID := r.Header.Get(h.requestIDHeader)
		if reqID == "" {
			// or use some generated string
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(
			r.Context(), common.RequestParam{}, common.RequestParam{
				ID: reqID, Method: r.Method, URI: r.URL.String(), RemoteAddr: r.RemoteAddr,
			},
		)
		headers := log.Fields{}
		for name, values := range r.Header {
			if !h.doNotLogHeaders[http.CanonicalHeaderKey(name)] {
				headers[name] = values
			}
		}
		log.WithFields(h.GetLogTagsForContext(ctx)).WithFields(headers).Debug("Request headers")
		rw.Header().Set(h.requestIDHeader, reqID)
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}
