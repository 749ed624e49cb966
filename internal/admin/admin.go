// Package admin implements the control-plane service SPEC_FULL.md §4.16
// describes: a gRPC service operators use to push virtual-cluster binding
// updates and pull live stats, without restarting edgekafkad. There is no
// protoc in this build environment, so the wire messages are plain JSON
// structs carried over a hand-registered grpc/encoding.Codec (codec.go)
// instead of generated protobuf stubs — every field here is already a
// value the rest of this proxy represents as a plain Go struct, so nothing
// is lost by skipping code generation.
package admin

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/edgekafka/edgekafka/internal/config"
	"github.com/edgekafka/edgekafka/internal/proxy"
)

// Builder turns one decoded virtual cluster config into the listener
// address, SNI, and runtime Binding the resolver should route to it.
// Supplied by cmd/edgekafkad, which owns the construction of filter
// chains, TLS configs, and every other dependency a Binding closes over.
type Builder interface {
	Build(vc config.VirtualCluster) (localAddr, sni string, binding proxy.Binding, err error)
}

// PublishRequest carries a full desired set of virtual clusters; the
// server treats every call as authoritative and atomically replaces the
// resolver's binding table, mirroring Resolver.PublishEntries' own
// all-at-once semantics.
type PublishRequest struct {
	Clusters []config.VirtualCluster `json:"clusters"`
}

type PublishResponse struct {
	BindingsInstalled int `json:"bindingsInstalled"`
}

type GetStatsRequest struct{}

type ClusterStats struct {
	ClusterID string `json:"clusterId"`
	ListenAddr string `json:"listenAddr"`
}

type GetStatsResponse struct {
	UptimeSeconds float64        `json:"uptimeSeconds"`
	Clusters      []ClusterStats `json:"clusters"`
}

// Service implements the admin plane's two RPCs directly (no generated
// interface to satisfy, since there's no .proto) and is registered onto a
// *grpc.Server via RegisterService below.
type Service struct {
	Resolver  *proxy.Resolver
	Builder   Builder
	StartedAt time.Time

	lastPublished []PublishedCluster
}

// PublishedCluster records what the last successful PublishVirtualClusters
// call installed, so GetStats can report it without the resolver itself
// exposing its internal table.
type PublishedCluster struct {
	ClusterID  string
	ListenAddr string
}

func NewService(resolver *proxy.Resolver, builder Builder) *Service {
	return &Service{Resolver: resolver, Builder: builder, StartedAt: time.Now()}
}

func (s *Service) PublishVirtualClusters(ctx context.Context, req *PublishRequest) (*PublishResponse, error) {
	entries := make([]proxy.Entry, 0, len(req.Clusters))
	published := make([]PublishedCluster, 0, len(req.Clusters))
	for _, vc := range req.Clusters {
		localAddr, sni, binding, err := s.Builder.Build(vc)
		if err != nil {
			return nil, fmt.Errorf("admin: build cluster %q: %w", vc.ClusterID, err)
		}
		entries = append(entries, proxy.Entry{LocalAddr: localAddr, SNI: sni, Binding: binding})
		published = append(published, PublishedCluster{ClusterID: vc.ClusterID, ListenAddr: localAddr})
	}
	s.Resolver.PublishEntries(entries)
	s.lastPublished = published
	return &PublishResponse{BindingsInstalled: len(entries)}, nil
}

func (s *Service) GetStats(ctx context.Context, req *GetStatsRequest) (*GetStatsResponse, error) {
	resp := &GetStatsResponse{UptimeSeconds: time.Since(s.StartedAt).Seconds()}
	for _, c := range s.lastPublished {
		resp.Clusters = append(resp.Clusters, ClusterStats{ClusterID: c.ClusterID, ListenAddr: c.ListenAddr})
	}
	return resp, nil
}

// serviceName is the fully-qualified gRPC service name clients dial
// against, in lieu of a .proto package.service path.
const serviceName = "edgekafka.admin.AdminService"

// RegisterService wires Service onto srv via a hand-built grpc.ServiceDesc,
// the low-level registration protoc normally generates into a
// "_grpc.pb.go" file. Each handler unmarshals its request with the
// server's negotiated codec (jsonCodec, since every client here dials with
// grpc.CallContentSubtype("json")) and forwards to the matching Service
// method.
func RegisterService(srv *grpc.Server, svc *Service) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "PublishVirtualClusters",
				Handler: func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					req := new(PublishRequest)
					if err := dec(req); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return svc.PublishVirtualClusters(ctx, req)
					}
					info := &grpc.UnaryServerInfo{Server: svc, FullMethod: "/" + serviceName + "/PublishVirtualClusters"}
					handler := func(ctx context.Context, req any) (any, error) {
						return svc.PublishVirtualClusters(ctx, req.(*PublishRequest))
					}
					return interceptor(ctx, req, info, handler)
				},
			},
			{
				MethodName: "GetStats",
				Handler: func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
					req := new(GetStatsRequest)
					if err := dec(req); err != nil {
						return nil, err
					}
					if interceptor == nil {
						return svc.GetStats(ctx, req)
					}
					info := &grpc.UnaryServerInfo{Server: svc, FullMethod: "/" + serviceName + "/GetStats"}
					handler := func(ctx context.Context, req any) (any, error) {
						return svc.GetStats(ctx, req.(*GetStatsRequest))
					}
					return interceptor(ctx, req, info, handler)
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "edgekafka/admin.proto",
	})
}
