package cmd

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PoLGRPCService represents the gRPC service implementation.
type PoLGRPCService struct {
	service *PoLService
}

// newGRPCServer sets up the node's gRPC server.
func newGRPCServer(service *PoLService) (*grpc.Server, *PoLGRPCService) {
	server := grpc.NewServer()
	impl := &PoLGRPCService{service: service}

	// TODO: Register proto-generated services here once the .proto
	// definitions land.

	return server, impl
}

// serveGRPC starts the gRPC server on the given port.
func serveGRPC(server *grpc.Server, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC port %d: %w", port, err)
	}
	return server.Serve(listener)
}

// Request/response types below mirror what the generated code will expose.

type ServiceStatusRequest struct{}

type ServiceStatusResponse struct {
	Healthy bool
	Stats   ServiceStats
}

type SubmitMeasurementRequest struct {
	PeerAddr string
}

type SubmitMeasurementResponse struct {
	JobID string
}

type RecordRequest struct {
	ID string
}

type RecordResponse struct {
	Record *PoLRecord
}

// GetServiceStatus returns the measurement service statistics.
func (s *PoLGRPCService) GetServiceStatus(ctx context.Context, req *ServiceStatusRequest) (*ServiceStatusResponse, error) {
	if s.service == nil {
		return nil, status.Error(codes.Internal, "service not available")
	}
	return &ServiceStatusResponse{
		Healthy: true,
		Stats:   s.service.GetStats(),
	}, nil
}

// SubmitMeasurement queues an outbound measurement.
func (s *PoLGRPCService) SubmitMeasurement(ctx context.Context, req *SubmitMeasurementRequest) (*SubmitMeasurementResponse, error) {
	if s.service == nil {
		return nil, status.Error(codes.Internal, "service not available")
	}
	if req.PeerAddr == "" {
		return nil, status.Error(codes.InvalidArgument, "peer address is required")
	}

	job, err := s.service.SubmitMeasurement(req.PeerAddr)
	if err != nil {
		return nil, status.Error(codes.ResourceExhausted, err.Error())
	}
	return &SubmitMeasurementResponse{JobID: job.ID}, nil
}

// GetRecord looks up a persisted record by ID.
func (s *PoLGRPCService) GetRecord(ctx context.Context, req *RecordRequest) (*RecordResponse, error) {
	if s.service == nil || s.service.store == nil {
		return nil, status.Error(codes.Unavailable, "record store not available")
	}

	record, err := s.service.store.Get(req.ID)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &RecordResponse{Record: record}, nil
}
