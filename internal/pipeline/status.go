package pipeline

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
)

// kinded is any of this repository's error types that report a taxonomy
// kind via Kind() string (wire.FormatError, codec.Error, codec.LifecycleError,
// UnsupportedFraming, descriptor.LoadError).
type kinded interface {
	Kind() string
}

// ToStatus maps a pipeline error to the gRPC status the HTTP/2 fabric
// should write onto a failed call's trailer. PassthroughCondition should
// never reach this function — a caller that got one should forward the
// original frame instead of failing the call.
func ToStatus(err error) *status.Status {
	var k kinded
	if !errors.As(err, &k) {
		return status.New(codes.Internal, err.Error())
	}

	switch k.Kind() {
	case "WireFormatError", "UnsupportedFraming":
		return status.New(codes.InvalidArgument, err.Error())
	case "LifecycleError":
		return status.New(codes.Internal, err.Error())
	case "CodecError":
		var ce *codec.Error
		if errors.As(err, &ce) && ce.Unavailable {
			return status.New(codes.Unavailable, err.Error())
		}
		return status.New(codes.Internal, err.Error())
	case "DescriptorLoadError":
		return status.New(codes.Unavailable, err.Error())
	default:
		return status.New(codes.Internal, err.Error())
	}
}
