// Package grpcclient talks to remote model servers over gRPC using
// self-describing google.protobuf.Struct messages.
package grpcclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/emotion-sense/internal/logging"
)

// Dial returns a ready-to-use connection to the model server at addr.
func Dial(ctx context.Context, addr string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, opts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_model_server", "", err)
		logger.Error("failed to dial model server", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return conn, nil
}

// StructClient performs unary calls whose request and response are
// google.protobuf.Struct values.
type StructClient struct {
	conn   grpc.ClientConnInterface
	method string
	logger *zap.Logger
}

// NewStructClient binds a client to a fully qualified method name such as
// "/emotion.v1.EmotionService/Classify".
func NewStructClient(conn grpc.ClientConnInterface, method string, logger *zap.Logger) *StructClient {
	return &StructClient{conn: conn, method: method, logger: logger}
}

// Call sends payload and returns the decoded response fields.
func (c *StructClient) Call(ctx context.Context, requestID string, payload map[string]interface{}) (map[string]interface{}, error) {
	req, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("build request struct: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, req, resp); err != nil {
		wrapped := logging.NewOperationError("grpcclient.invoke", requestID, err)
		c.logger.Error("model server call failed", zap.Error(wrapped), zap.String("method", c.method))
		return nil, wrapped
	}
	return resp.AsMap(), nil
}
