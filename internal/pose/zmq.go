package pose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"rom-stream-go/internal/angles"
	"rom-stream-go/internal/types"
)

// ZMQDetector talks to a pose worker over a REQ socket. Requests are
// serialised; the socket is relaxed and correlated so a timed-out request
// does not wedge the next one.
type ZMQDetector struct {
	mu        sync.Mutex
	socket    *zmq4.Socket
	endpoint  string
	threshold float64
	minRatio  float64
}

type ZMQOptions struct {
	Timeout             time.Duration
	ConfidenceThreshold float64
	MinKeypointsRatio   float64
}

func DialZMQ(endpoint string, opts ZMQOptions) (*ZMQDetector, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	socket, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, err
	}
	setup := []func() error{
		func() error { return socket.SetReqRelaxed(1) },
		func() error { return socket.SetReqCorrelate(1) },
		func() error { return socket.SetRcvtimeo(opts.Timeout) },
		func() error { return socket.SetSndtimeo(opts.Timeout) },
		func() error { return socket.SetLinger(0) },
		func() error { return socket.Connect(endpoint) },
	}
	for _, step := range setup {
		if err := step(); err != nil {
			_ = socket.Close()
			return nil, fmt.Errorf("pose worker %s: %w", endpoint, err)
		}
	}
	return &ZMQDetector{
		socket:    socket,
		endpoint:  endpoint,
		threshold: opts.ConfidenceThreshold,
		minRatio:  opts.MinKeypointsRatio,
	}, nil
}

func (d *ZMQDetector) Endpoint() string { return d.endpoint }

func (d *ZMQDetector) Detect(ctx context.Context, image []byte) (angles.Keypoints, float64, error) {
	reply, err := d.roundTrip(ctx, map[string]any{"type": "detect", "image": image})
	if err != nil {
		return nil, 0, err
	}
	person, err := decodeDetectReply(reply)
	if err != nil {
		return nil, 0, err
	}
	kp, conf := Filter(person, d.threshold, d.minRatio)
	return kp, conf, nil
}

// Ping checks the worker answers {"type":"pong"}.
func (d *ZMQDetector) Ping(ctx context.Context) error {
	reply, err := d.roundTrip(ctx, map[string]any{"type": "ping"})
	if err != nil {
		return err
	}
	var msg struct {
		Type string `cbor:"type"`
	}
	if err := cbor.Unmarshal(reply, &msg); err != nil {
		return fmt.Errorf("pose worker ping: %w", err)
	}
	if msg.Type != "pong" {
		return fmt.Errorf("pose worker ping: unexpected reply %q", msg.Type)
	}
	return nil
}

func (d *ZMQDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.socket.Close()
}

func (d *ZMQDetector) roundTrip(ctx context.Context, request map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := cbor.Marshal(request)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.socket.SendBytes(payload, 0); err != nil {
		return nil, fmt.Errorf("pose worker send: %w", err)
	}
	reply, err := d.socket.RecvBytes(0)
	if err != nil {
		return nil, fmt.Errorf("pose worker recv: %w", err)
	}
	return reply, nil
}

type detectReply struct {
	Type      string   `cbor:"type"`
	Message   string   `cbor:"message"`
	People    *int     `cbor:"people"`
	Names     []string `cbor:"names"`
	Keypoints any      `cbor:"keypoints"`
	Scores    any      `cbor:"scores"`
}

func decodeDetectReply(msg []byte) (Person, error) {
	var reply detectReply
	if err := cbor.Unmarshal(msg, &reply); err != nil {
		return Person{}, fmt.Errorf("pose reply decode: %w", err)
	}
	switch reply.Type {
	case "pose":
	case "error":
		return Person{}, fmt.Errorf("pose worker: %s", reply.Message)
	default:
		return Person{}, fmt.Errorf("pose reply: unexpected type %q", reply.Type)
	}
	if (reply.People != nil && *reply.People == 0) || reply.Keypoints == nil {
		return Person{}, nil
	}

	rows, err := types.DecodeMatrix(reply.Keypoints)
	if err != nil {
		return Person{}, fmt.Errorf("pose reply keypoints: %w", err)
	}
	scores, err := types.DecodeVector(reply.Scores)
	if err != nil {
		return Person{}, fmt.Errorf("pose reply scores: %w", err)
	}
	names := reply.Names
	if len(names) == 0 {
		names = HALPE26
	}
	if len(rows) != len(scores) || len(rows) > len(names) {
		return Person{}, errors.New("pose reply: keypoint, score and name counts differ")
	}

	points := make([][2]float64, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return Person{}, errors.New("pose reply: keypoint rows need x and y")
		}
		points[i] = [2]float64{row[0], row[1]}
	}
	return Person{Names: names[:len(rows)], Points: points, Scores: scores}, nil
}
