package failure

import (
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Metadata keys of the ErrorInfo detail attached to gRPC failures.
const (
	ErrorInfoDomain     = "georetry"
	MetadataSubStatus   = "substatus"
	MetadataActivityID  = "activity_id"
	errorInfoReasonFail = "SERVICE_FAILURE"
)

var codeToStatus = map[codes.Code]int{
	codes.InvalidArgument:    StatusBadRequest,
	codes.Unauthenticated:    StatusUnauthorized,
	codes.PermissionDenied:   StatusForbidden,
	codes.NotFound:           StatusNotFound,
	codes.AlreadyExists:      StatusConflict,
	codes.Aborted:            StatusConflict,
	codes.FailedPrecondition: StatusPreconditionFailed,
	codes.ResourceExhausted:  StatusTooManyRequests,
	codes.OutOfRange:         StatusGone,
	codes.Internal:           StatusInternalError,
}

var statusToCode = map[int]codes.Code{
	StatusBadRequest:         codes.InvalidArgument,
	StatusUnauthorized:       codes.Unauthenticated,
	StatusForbidden:          codes.PermissionDenied,
	StatusNotFound:           codes.NotFound,
	StatusRequestTimeout:     codes.DeadlineExceeded,
	StatusConflict:           codes.AlreadyExists,
	StatusGone:               codes.OutOfRange,
	StatusPreconditionFailed: codes.FailedPrecondition,
	StatusTooManyRequests:    codes.ResourceExhausted,
	StatusInternalError:      codes.Internal,
	StatusServiceUnavailable: codes.Unavailable,
}

// FromStatus converts an error returned by a gRPC call into the failure
// taxonomy. Unavailable and DeadlineExceeded become connectivity errors;
// sub-status and retry delay are read from ErrorInfo and RetryInfo details.
// Errors that do not carry a gRPC status are returned unchanged.
func FromStatus(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		if IsConnectivity(err) {
			return &ConnectivityError{Endpoint: endpoint, Err: err}
		}
		return err
	}

	switch st.Code() {
	case codes.OK:
		return nil
	case codes.Canceled:
		return err
	case codes.Unavailable, codes.DeadlineExceeded:
		return &ConnectivityError{Endpoint: endpoint, Err: err}
	}

	code, ok := codeToStatus[st.Code()]
	if !ok {
		code = StatusInternalError
	}
	f := New(code, st.Message()).WithCause(err)

	for _, d := range st.Details() {
		switch detail := d.(type) {
		case *errdetails.ErrorInfo:
			if v, ok := detail.GetMetadata()[MetadataSubStatus]; ok {
				if sub, err := strconv.Atoi(v); err == nil {
					f.SubStatusCode = sub
				}
			}
			if v, ok := detail.GetMetadata()[MetadataActivityID]; ok {
				f.Headers[HeaderActivityID] = v
			}
		case *errdetails.RetryInfo:
			if delay := detail.GetRetryDelay(); delay != nil {
				f.Headers[HeaderRetryAfterMs] = strconv.FormatInt(delay.AsDuration().Milliseconds(), 10)
			}
		}
	}
	return f
}

// ToStatus encodes a failure as a gRPC status, the inverse of FromStatus.
func ToStatus(f *Failure) *status.Status {
	code, ok := statusToCode[f.StatusCode]
	if !ok {
		code = codes.Unknown
	}
	st := status.New(code, f.Message)

	info := &errdetails.ErrorInfo{
		Reason:   errorInfoReasonFail,
		Domain:   ErrorInfoDomain,
		Metadata: map[string]string{},
	}
	if sub := f.SubStatus(); sub != SubStatusUnknown {
		info.Metadata[MetadataSubStatus] = strconv.Itoa(sub)
	}
	if id := f.ActivityID(); id != "" {
		info.Metadata[MetadataActivityID] = id
	}
	var (
		withDetails *status.Status
		err         error
	)
	if delay := f.RetryAfter(); delay > 0 {
		withDetails, err = st.WithDetails(info, &errdetails.RetryInfo{RetryDelay: durationpb.New(delay)})
	} else {
		withDetails, err = st.WithDetails(info)
	}
	if err != nil {
		return st
	}
	return withDetails
}
