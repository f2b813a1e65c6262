// Package stream serves live beat intervals over gRPC. Messages are
// google.protobuf.Struct values so clients need no generated code:
//
//	request:  {"mode": "hrv"}            (mode optional)
//	response: {"seq": 7, "at": "...", "interval_ms": 812, "mode": "hrv"}
package stream

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/pulse.monitor/internal/beatbus"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pulsemon.BeatStream"

// SubscribeMethod is the full method path of the streaming RPC.
const SubscribeMethod = "/" + ServiceName + "/Subscribe"

const subscriberBuffer = 32

// BeatStreamServer is the server side of the BeatStream service.
type BeatStreamServer interface {
	Subscribe(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes BeatStream for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BeatStreamServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pulsemon/beatstream",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(BeatStreamServer).Subscribe(req, stream)
}

var _ BeatStreamServer = (*Server)(nil)

// Server streams beats from a bus to every connected client.
type Server struct {
	bus     *beatbus.Bus
	clients atomic.Int32
}

// NewServer creates a server reading from bus.
func NewServer(bus *beatbus.Bus) *Server {
	return &Server{bus: bus}
}

// Register adds the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Clients returns the number of connected subscribers.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// Subscribe implements BeatStreamServer.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	var mode beatbus.Mode
	if v, ok := req.GetFields()["mode"]; ok {
		mode = beatbus.Mode(v.GetStringValue())
		if mode != beatbus.ModeHeartRate && mode != beatbus.ModeHRV {
			return status.Errorf(codes.InvalidArgument, "unknown mode %q", mode)
		}
	}

	id, beats := s.bus.Subscribe(subscriberBuffer)
	defer s.bus.Unsubscribe(id)
	s.clients.Add(1)
	defer s.clients.Add(-1)

	log.Printf("[gRPC] beat stream client connected (mode=%q)", mode)
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[gRPC] beat stream client gone: %v", ctx.Err())
			return ctx.Err()
		case b, ok := <-beats:
			if !ok {
				return nil
			}
			if mode != "" && b.Mode != mode {
				continue
			}
			msg, err := BeatToStruct(b)
			if err != nil {
				return status.Errorf(codes.Internal, "encoding beat: %v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// BeatToStruct converts b to its wire form.
func BeatToStruct(b beatbus.Beat) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"seq":         b.Seq,
		"at":          b.At.UTC().Format(time.RFC3339Nano),
		"interval_ms": b.IntervalMs,
		"mode":        string(b.Mode),
	})
}

// BeatFromStruct is the inverse of BeatToStruct.
func BeatFromStruct(s *structpb.Struct) (beatbus.Beat, error) {
	f := s.GetFields()
	at, err := time.Parse(time.RFC3339Nano, f["at"].GetStringValue())
	if err != nil {
		return beatbus.Beat{}, fmt.Errorf("parsing beat time: %w", err)
	}
	return beatbus.Beat{
		Seq:        uint64(f["seq"].GetNumberValue()),
		At:         at,
		IntervalMs: int(f["interval_ms"].GetNumberValue()),
		Mode:       beatbus.Mode(f["mode"].GetStringValue()),
	}, nil
}

// Listen serves the beat stream on addr until ctx is done.
func (s *Server) Listen(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	s.Register(gs)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	log.Printf("[gRPC] beat stream listening on %s", lis.Addr())
	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Subscribe opens a client stream on conn and delivers beats to fn until
// the stream ends or ctx is done.
func Subscribe(ctx context.Context, conn grpc.ClientConnInterface, mode beatbus.Mode, fn func(beatbus.Beat)) error {
	cs, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], SubscribeMethod)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if mode != "" {
		fields["mode"] = string(mode)
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	if err := cs.SendMsg(req); err != nil {
		return err
	}
	if err := cs.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := cs.RecvMsg(msg); err != nil {
			return err
		}
		b, err := BeatFromStruct(msg)
		if err != nil {
			return err
		}
		fn(b)
	}
}
