package common

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Response Structure
// --------------------------------------------------------------------------

// AppStatusUnset is the application status reported when the procedure did
// not set one.
const AppStatusUnset int8 = math.MinInt8

// ConnectionLostMessage is the status string of every locally synthesized
// connection lost response.
const ConnectionLostMessage = "Connection to the database was lost"

// Response is the outcome of one stored procedure invocation. It is produced
// exactly once per accepted invocation, either decoded from a server frame or
// synthesized by the client when the connection carrying the request fails.
type Response struct {
	// CorrelationID links the response to the request it answers
	CorrelationID int64 `json:"correlation_id"`

	// Status and the optional human readable explanation (empty on success)
	Status       StatusCode `json:"status"`
	StatusString string     `json:"status_string,omitempty"`

	// Application defined status, AppStatusUnset if the procedure did not set it
	AppStatus       int8   `json:"app_status"`
	AppStatusString string `json:"app_status_string,omitempty"`

	// ClusterRoundTrip is the execution time in ms as measured by the server
	ClusterRoundTrip int32 `json:"cluster_round_trip"`

	// ClientRoundTrip is the time between submission and dispatch as measured
	// by the client. It is never sent on the wire.
	ClientRoundTrip time.Duration `json:"client_round_trip"`

	// Tables holds the result tables in the order the procedure produced them
	Tables []*Table `json:"tables,omitempty"`
}

// --------------------------------------------------------------------------
// Response Factory Functions
// --------------------------------------------------------------------------

// NewResponse creates a response with the given status and default values
// for all optional fields
func NewResponse(correlationID int64, status StatusCode) *Response {
	return &Response{
		CorrelationID: correlationID,
		Status:        status,
		AppStatus:     AppStatusUnset,
	}
}

// NewConnectionLostResponse creates the response delivered to callers whose
// request was in flight on a connection that failed
func NewConnectionLostResponse(correlationID int64) *Response {
	resp := NewResponse(correlationID, StatusConnectionLost)
	resp.StatusString = ConnectionLostMessage
	return resp
}

// NewErrorResponse creates a failure response with the given status string
func NewErrorResponse(correlationID int64, status StatusCode, msg string) *Response {
	resp := NewResponse(correlationID, status)
	resp.StatusString = msg
	return resp
}

// --------------------------------------------------------------------------
// Response Methods
// --------------------------------------------------------------------------

// Success returns true if the procedure executed without aborting
func (r *Response) Success() bool {
	return r.Status == StatusSuccess
}

// Failure returns true for every status other than StatusSuccess
func (r *Response) Failure() bool {
	return r.Status != StatusSuccess
}

// String returns a multi line representation of the response
func (r *Response) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status: %d (%s), %s\n", int8(r.Status), r.Status, r.StatusString))
	sb.WriteString(fmt.Sprintf("App Status: %d, %s\n", r.AppStatus, r.AppStatusString))
	sb.WriteString(fmt.Sprintf("Correlation ID: %d\n", r.CorrelationID))
	sb.WriteString(fmt.Sprintf("Cluster Round Trip Time: %d ms\n", r.ClusterRoundTrip))
	sb.WriteString(fmt.Sprintf("Client Round Trip Time: %s\n", r.ClientRoundTrip))
	for i, t := range r.Tables {
		sb.WriteString(fmt.Sprintf("Result Table %d\n", i))
		t.writeTo(&sb, "    ")
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Status Code Definition
// --------------------------------------------------------------------------

// StatusCode is the outcome of a completed invocation. The numeric values are
// part of the wire protocol.
type StatusCode int8

const (
	StatusSuccess           StatusCode = 1  // procedure executed without aborting
	StatusUserAbort         StatusCode = -1 // procedure aborted and was rolled back
	StatusGracefulFailure   StatusCode = -2 // e.g. constraint violation
	StatusUnexpectedFailure StatusCode = -3 // unknown procedure or runtime fault
	StatusConnectionLost    StatusCode = -4 // synthesized by the client, never on the wire
)

// String returns the string representation of a StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUserAbort:
		return "user abort"
	case StatusGracefulFailure:
		return "graceful failure"
	case StatusUnexpectedFailure:
		return "unexpected failure"
	case StatusConnectionLost:
		return "connection lost"
	default:
		return "unknown"
	}
}

// Valid reports whether s may appear in a server frame
func (s StatusCode) Valid() bool {
	switch s {
	case StatusSuccess, StatusUserAbort, StatusGracefulFailure, StatusUnexpectedFailure:
		return true
	default:
		return false
	}
}
