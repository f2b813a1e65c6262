package stream

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/pulse.monitor/internal/beatbus"
)

func startServer(t *testing.T, bus *beatbus.Bus) (*Server, *grpc.ClientConn) {
	t.Helper()
	lis := bufconn.Listen(1 << 16)
	srv := NewServer(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	return srv, conn
}

func TestBeatStructRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 30, 0, 125000000, time.UTC)
	in := beatbus.Beat{Seq: 42, At: at, IntervalMs: 812, Mode: beatbus.ModeHRV}

	s, err := BeatToStruct(in)
	require.NoError(t, err)
	assert.Equal(t, float64(812), s.GetFields()["interval_ms"].GetNumberValue())
	assert.Equal(t, "hrv", s.GetFields()["mode"].GetStringValue())

	out, err := BeatFromStruct(s)
	require.NoError(t, err)
	assert.Equal(t, in.Seq, out.Seq)
	assert.Equal(t, in.IntervalMs, out.IntervalMs)
	assert.Equal(t, in.Mode, out.Mode)
	assert.True(t, in.At.Equal(out.At))
}

func TestSubscribeStreamsBeats(t *testing.T) {
	bus := beatbus.New()
	srv, conn := startServer(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan beatbus.Beat, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- Subscribe(ctx, conn, beatbus.ModeHRV, func(b beatbus.Beat) { got <- b })
	}()
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, 2*time.Second, time.Millisecond)

	bus.Publish(beatbus.Beat{At: time.Now(), IntervalMs: 1000, Mode: beatbus.ModeHeartRate})
	bus.Publish(beatbus.Beat{At: time.Now(), IntervalMs: 812, Mode: beatbus.ModeHRV})

	select {
	case b := <-got:
		assert.Equal(t, 812, b.IntervalMs)
		assert.Equal(t, uint64(2), b.Seq)
		assert.Equal(t, beatbus.ModeHRV, b.Mode)
	case <-time.After(2 * time.Second):
		t.Fatal("no beat received")
	}

	cancel()
	select {
	case err := <-errc:
		assert.Equal(t, codes.Canceled, status.Code(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, time.Millisecond)
}

func TestSubscribeRejectsUnknownMode(t *testing.T) {
	bus := beatbus.New()
	_, conn := startServer(t, bus)

	err := Subscribe(context.Background(), conn, beatbus.Mode("ecg"), func(beatbus.Beat) {})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSubscribeEndsWhenBusCloses(t *testing.T) {
	bus := beatbus.New()
	srv, conn := startServer(t, bus)

	errc := make(chan error, 1)
	go func() {
		errc <- Subscribe(context.Background(), conn, "", func(beatbus.Beat) {})
	}()
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, 2*time.Second, time.Millisecond)

	bus.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after the bus closed")
	}
}
