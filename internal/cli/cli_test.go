package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Montecarlo/internal/aggregator"
	"github.com/shaiso/Montecarlo/internal/api"
	"github.com/shaiso/Montecarlo/internal/config"
	"github.com/shaiso/Montecarlo/internal/domain"
	"github.com/shaiso/Montecarlo/internal/handshake"
	"github.com/shaiso/Montecarlo/internal/mq"
	"github.com/shaiso/Montecarlo/internal/mq/memq"
	"github.com/shaiso/Montecarlo/internal/telemetry"
)

func bufferOutput(jsonMode bool, buf *bytes.Buffer) func() *Output {
	return func() *Output {
		return &Output{jsonMode: jsonMode, w: buf, errW: io.Discard}
	}
}

func memBroker(b *memq.Broker) BrokerFunc {
	return func(context.Context) (Broker, func(), error) {
		return b, func() {}, nil
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(ctx)
}

// --- Produce Tests ---

func TestProduceCmd_Points(t *testing.T) {
	b := memq.New(nil)
	var buf bytes.Buffer
	cmd := NewProduceCmd(memBroker(b), bufferOutput(true, &buf), telemetry.Discard(), config.Default().Producer)

	if err := execute(t, cmd, "--points", "2500", "--unit-size", "1000", "--model-copies", "2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, _ := b.Inspect(context.Background(), mq.QueueTasks)
	models, _ := b.Inspect(context.Background(), mq.QueueModel)
	if tasks.Messages != 3 || models.Messages != 2 {
		t.Errorf("expected 3 tasks and 2 models, got %d and %d", tasks.Messages, models.Messages)
	}

	var report struct {
		Tasks  int `json:"tasks"`
		Points int `json:"points"`
	}
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if report.Tasks != 3 || report.Points != 2500 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestProduceCmd_StrategyMultiplier(t *testing.T) {
	b := memq.New(nil)
	var buf bytes.Buffer
	cmd := NewProduceCmd(memBroker(b), bufferOutput(false, &buf), telemetry.Discard(), config.Default().Producer)

	if err := execute(t, cmd, "--points", "10", "--strategy", "sphere"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, ok, _ := b.Get(context.Background(), mq.QueueModel)
	if !ok {
		t.Fatal("model missing")
	}
	model, err := domain.ParseModel(d.Body())
	if err != nil {
		t.Fatalf("parse model: %v", err)
	}
	if model.Strategy != "sphere" || model.Multiplier != 6 {
		t.Errorf("unexpected model: %+v", model)
	}
}

func TestProduceCmd_StreamNegotiatesUnitSize(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := handshake.NewServer(handshake.Policy{UnitSize: 250}, telemetry.Discard())
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.GracefulStop()

	b := memq.New(nil)
	var buf bytes.Buffer
	cmd := NewProduceCmd(memBroker(b), bufferOutput(true, &buf), telemetry.Discard(), config.Default().Producer)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	cmd.SetArgs([]string{"--interval", "20ms", "--unit-size", "1000", "--handshake-addr", lis.Addr().String()})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks := 0
	for {
		d, ok, err := b.Get(context.Background(), mq.QueueTasks)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if !ok {
			break
		}
		task, err := domain.ParseTask(d.Body(), d.MessageID())
		if err != nil {
			t.Fatalf("parse task: %v", err)
		}
		if task.SampleCount != 250 {
			t.Errorf("expected negotiated 250 points, got %d", task.SampleCount)
		}
		tasks++
	}
	if tasks == 0 {
		t.Error("stream should publish at least one task")
	}
}

func TestProduceCmd_UnknownStrategy(t *testing.T) {
	b := memq.New(nil)
	var buf bytes.Buffer
	cmd := NewProduceCmd(memBroker(b), bufferOutput(false, &buf), telemetry.Discard(), config.Default().Producer)

	if err := execute(t, cmd, "--points", "10", "--strategy", "python"); err == nil {
		t.Error("unknown strategy should be rejected")
	}
	if info, _ := b.Inspect(context.Background(), mq.QueueModel); info.Messages != 0 {
		t.Error("nothing should be published")
	}
}

func TestProduceCmd_NoInput(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewProduceCmd(memBroker(memq.New(nil)), bufferOutput(false, &buf), telemetry.Discard(), config.Default().Producer)

	if err := execute(t, cmd); err == nil {
		t.Error("expected error without --file or --points")
	}
}

// --- Queue Tests ---

func TestStatusAndPurge(t *testing.T) {
	b := memq.New(nil)
	publisher := mq.NewPublisher(b, telemetry.Discard())
	for i := 0; i < 4; i++ {
		publisher.PublishTask(context.Background(), domain.ScenarioTask{ID: string(rune('a' + i)), SampleCount: 10})
	}

	var buf bytes.Buffer
	if err := execute(t, NewStatusCmd(memBroker(b), bufferOutput(true, &buf))); err != nil {
		t.Fatalf("status: %v", err)
	}

	var infos []mq.QueueInfo
	if err := json.Unmarshal(buf.Bytes(), &infos); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	found := false
	for _, info := range infos {
		if info.Name == string(mq.QueueTasks) {
			found = true
			if info.Messages != 4 {
				t.Errorf("expected 4 tasks, got %d", info.Messages)
			}
		}
	}
	if !found {
		t.Error("tasks queue missing from status")
	}

	buf.Reset()
	if err := execute(t, NewPurgeCmd(memBroker(b), bufferOutput(false, &buf))); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(buf.String(), string(mq.QueueTasks)) {
		t.Errorf("purge output should list queues: %s", buf.String())
	}
	if info, _ := b.Inspect(context.Background(), mq.QueueTasks); info.Messages != 0 {
		t.Errorf("expected empty tasks queue, got %d", info.Messages)
	}
}

// --- Estimate Tests ---

func TestEstimateCmd(t *testing.T) {
	state := aggregator.NewState(4, true)
	state.Fold(domain.ResultRecord{ScenarioID: "a", SampleCount: 100, HitCount: 80, WorkerID: "w1"})
	state.Fold(domain.ResultRecord{ScenarioID: "b", SampleCount: 100, HitCount: 76, WorkerID: "w2"})

	mux := http.NewServeMux()
	api.NewHandler(api.Config{Source: state, Logger: telemetry.Discard()}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	cmd := NewEstimateCmd(func() *Client { return NewClient(srv.URL) }, bufferOutput(true, &buf))
	if err := execute(t, cmd); err != nil {
		t.Fatalf("estimate: %v", err)
	}

	var view estimateView
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Estimate.TotalPoints != 200 || view.Estimate.Estimate != 3.12 {
		t.Errorf("unexpected estimate: %+v", view.Estimate)
	}
	if len(view.Workers) != 2 {
		t.Errorf("expected 2 workers, got %+v", view.Workers)
	}

	buf.Reset()
	cmd = NewEstimateCmd(func() *Client { return NewClient(srv.URL) }, bufferOutput(false, &buf))
	if err := execute(t, cmd); err != nil {
		t.Fatalf("estimate table: %v", err)
	}
	if !strings.Contains(buf.String(), "WORKER") || !strings.Contains(buf.String(), "w1") {
		t.Errorf("unexpected table output: %s", buf.String())
	}
}

func TestEstimateCmd_APIError(t *testing.T) {
	mux := http.NewServeMux()
	api.NewHandler(api.Config{Logger: telemetry.Discard()}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var buf bytes.Buffer
	cmd := NewEstimateCmd(func() *Client { return NewClient(srv.URL) }, bufferOutput(false, &buf))
	err := execute(t, cmd)
	if err == nil || !strings.Contains(err.Error(), "UNAVAILABLE") {
		t.Errorf("expected UNAVAILABLE error, got %v", err)
	}
}

// --- Local Tests ---

func TestRunLocal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := RunLocal(ctx, LocalOptions{
		Model:   domain.ModelDescriptor{Version: "v1", Multiplier: 4},
		Counts:  []int{100, 200, 300},
		Workers: 2,
		Dedup:   true,
		Logger:  telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.TotalPoints != 600 || snap.ScenarioCount != 3 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Estimate != domain.Estimate(4, snap.TotalHits, 600) {
		t.Errorf("estimate %v does not match hits %d", snap.Estimate, snap.TotalHits)
	}
}

func TestRunLocal_MoreWorkersThanTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := RunLocal(ctx, LocalOptions{
		Model:   domain.ModelDescriptor{Version: "v1"},
		Counts:  []int{50},
		Workers: 4,
		Dedup:   true,
		Logger:  telemetry.Discard(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ScenarioCount != 1 {
		t.Errorf("expected 1 scenario, got %d", snap.ScenarioCount)
	}
}

func TestLocalCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewLocalCmd(bufferOutput(true, &buf), telemetry.Discard())

	if err := execute(t, cmd, "--points", "3000", "--unit-size", "500", "--workers", "3"); err != nil {
		t.Fatalf("local: %v", err)
	}

	var view localView
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Estimate.TotalPoints != 3000 || view.Estimate.ScenarioCount != 6 {
		t.Errorf("unexpected estimate: %+v", view.Estimate)
	}
	if view.Estimate.AbsError == nil {
		t.Error("circle strategy should report abs_error")
	}
}
