package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/operation"
)

const reqID = "c045c793-19f1-43b5-9547-c87a5c7dfadb"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testOp(t *testing.T, bbox []float64) *operation.DataOperation {
	t.Helper()
	sync := true
	op, err := operation.New(operation.Model{
		Client:        "harmony-test",
		Callback:      "http://example.com/callback",
		Sources:       []operation.Source{},
		Format:        &operation.Format{},
		User:          "test-user",
		Subset:        &operation.Subset{BBox: bbox},
		IsSynchronous: &sync,
		RequestID:     reqID,
	})
	if err != nil {
		t.Fatalf("operation.New: %v", err)
	}
	return op
}

func headerValue(msg *sarama.ProducerMessage, key string) string {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDispatch_SendsKeyedMessageWithVersionHeader(t *testing.T) {
	prod := mocks.NewSyncProducer(t, nil)
	prod.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "work" {
			return fmt.Errorf("topic=%q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != reqID {
			return fmt.Errorf("key=%q", key)
		}
		if v := headerValue(msg, HeaderSchemaVersion); v != "0.3.0" {
			return fmt.Errorf("version header=%q", v)
		}
		val, _ := msg.Value.Encode()
		if got := gjson.GetBytes(val, "version").String(); got != "0.3.0" {
			return fmt.Errorf("wire version=%q", got)
		}
		if gjson.GetBytes(val, "temporal").Exists() {
			return fmt.Errorf("0.3.0 must not carry temporal")
		}
		return nil
	})

	d, err := NewWithProducer(prod, "work", "0.3.0", nil, quiet)
	if err != nil {
		t.Fatalf("NewWithProducer: %v", err)
	}
	defer func() { _ = d.Close() }()

	op := testOp(t, []float64{-130, -45, 130, 45})
	if err := op.SetTemporalRange("1999-01-01T10:00:00Z", ""); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(context.Background(), op); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatch_DefaultsToLatestVersion(t *testing.T) {
	prod := mocks.NewSyncProducer(t, nil)
	prod.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if got := gjson.GetBytes(val, "version").String(); got != "0.4.0" {
			return fmt.Errorf("wire version=%q", got)
		}
		return nil
	})
	d, err := NewWithProducer(prod, "work", "", nil, quiet)
	if err != nil {
		t.Fatalf("NewWithProducer: %v", err)
	}
	defer func() { _ = d.Close() }()

	if d.Version() != "0.4.0" {
		t.Fatalf("got %q want 0.4.0", d.Version())
	}
	if err := d.Dispatch(context.Background(), testOp(t, []float64{-10, -10, 10, 10})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatch_InvalidOperationNotSent(t *testing.T) {
	prod := mocks.NewSyncProducer(t, nil)
	d, err := NewWithProducer(prod, "work", "0.4.0", nil, quiet)
	if err != nil {
		t.Fatalf("NewWithProducer: %v", err)
	}
	defer func() { _ = d.Close() }()

	err = d.Dispatch(context.Background(), testOp(t, []float64{1, 2, 3}))
	if !errors.Is(err, errs.ErrSchemaValidation) {
		t.Fatalf("got %v want ErrSchemaValidation", err)
	}
}

func TestDispatch_ProducerErrorWrapped(t *testing.T) {
	prod := mocks.NewSyncProducer(t, nil)
	boom := errors.New("broker down")
	prod.ExpectSendMessageAndFail(boom)

	d, err := NewWithProducer(prod, "work", "", nil, quiet)
	if err != nil {
		t.Fatalf("NewWithProducer: %v", err)
	}
	defer func() { _ = d.Close() }()

	if err := d.Dispatch(context.Background(), testOp(t, []float64{-10, -10, 10, 10})); !errors.Is(err, boom) {
		t.Fatalf("got %v want wrapped broker error", err)
	}
}

func TestDispatch_CanceledContextNotSent(t *testing.T) {
	prod := mocks.NewSyncProducer(t, nil)
	d, err := NewWithProducer(prod, "work", "", nil, quiet)
	if err != nil {
		t.Fatalf("NewWithProducer: %v", err)
	}
	defer func() { _ = d.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Dispatch(ctx, testOp(t, []float64{-10, -10, 10, 10})); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestNew_DisabledDropsOperations(t *testing.T) {
	d, err := New(Config{Enabled: false}, nil, quiet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Enabled() {
		t.Fatalf("dispatcher should be disabled")
	}
	if err := d.Dispatch(context.Background(), testOp(t, []float64{-10, -10, 10, 10})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNew_UnsupportedVersion(t *testing.T) {
	_, err := NewWithProducer(mocks.NewSyncProducer(t, nil), "work", "9.9.9", nil, quiet)
	if !errors.Is(err, errs.ErrUnsupportedVersion) {
		t.Fatalf("got %v want ErrUnsupportedVersion", err)
	}
}
