package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region method-names

const (
	serviceName      = "halluguard.v1.InferenceService"
	methodGenerate   = "/" + serviceName + "/Generate"
	methodForward    = "/" + serviceName + "/Forward"
	methodTokenize   = "/" + serviceName + "/Tokenize"
	methodDetokenize = "/" + serviceName + "/Detokenize"
	methodClassify   = "/" + serviceName + "/Classify"
)

// #endregion method-names

// #region service-client

// InferenceServiceClient is the RPC surface of the Python inference sidecar.
// Messages are google.protobuf.Struct so the sidecar needs no generated stubs.
type InferenceServiceClient interface {
	Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Forward(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Tokenize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Detokenize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Classify(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type inferenceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewInferenceServiceClient binds the inference RPCs to a connection.
func NewInferenceServiceClient(cc grpc.ClientConnInterface) InferenceServiceClient {
	return &inferenceServiceClient{cc: cc}
}

func (c *inferenceServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inferenceServiceClient) Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGenerate, in, opts...)
}

func (c *inferenceServiceClient) Forward(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodForward, in, opts...)
}

func (c *inferenceServiceClient) Tokenize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodTokenize, in, opts...)
}

func (c *inferenceServiceClient) Detokenize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDetokenize, in, opts...)
}

func (c *inferenceServiceClient) Classify(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodClassify, in, opts...)
}

// #endregion service-client
