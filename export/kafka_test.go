package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"

	"nppestool/npdata"
)

type fakeProducer struct {
	calls   int
	records []*kgo.Record
	failOn  int // 1-based call that fails; 0 never fails
	flushed bool
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.calls++
	var out kgo.ProduceResults
	for _, r := range rs {
		var err error
		if f.calls == f.failOn {
			err = errors.New("broker unavailable")
		} else {
			f.records = append(f.records, r)
		}
		out = append(out, kgo.ProduceResult{Record: r, Err: err})
	}
	return out
}

func (f *fakeProducer) Flush(context.Context) error {
	f.flushed = true
	return nil
}

func (f *fakeProducer) Close() { f.closed = true }

func TestKafkaPublish(t *testing.T) {
	fp := &fakeProducer{}
	sink := newKafkaSink(fp, "providers", 1, nil)

	n, err := sink.Publish(context.Background(), sample())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || fp.calls != 2 {
		t.Fatalf("sent %d in %d calls, want 2 in 2", n, fp.calls)
	}

	r := fp.records[1]
	if string(r.Key) != "1234567901" || r.Topic != "providers" {
		t.Errorf("record key %q topic %q", r.Key, r.Topic)
	}
	if len(r.Headers) != 1 || r.Headers[0].Key != "entity_type" || string(r.Headers[0].Value) != "2" {
		t.Errorf("headers = %+v", r.Headers)
	}
	var p npdata.Provider
	if err := json.Unmarshal(r.Value, &p); err != nil {
		t.Fatal(err)
	}
	if p.Organization.LegalBusinessName != `ACME "BEST" CLINIC` {
		t.Errorf("decoded %+v", p.Organization)
	}

	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if !fp.flushed || !fp.closed {
		t.Error("Close did not flush and close the client")
	}
}

func TestKafkaPublishError(t *testing.T) {
	fp := &fakeProducer{failOn: 2}
	sink := newKafkaSink(fp, "providers", 1, nil)

	n, err := sink.Publish(context.Background(), sample())
	if npdata.ErrorKindOf(err) != npdata.KindExport {
		t.Fatalf("got %v, want Export error", err)
	}
	if n != 1 {
		t.Errorf("acknowledged %d, want 1", n)
	}
}

func TestNewKafkaSinkRequiresBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "providers"}, nil)
	if npdata.ErrorKindOf(err) != npdata.KindConfiguration {
		t.Errorf("got %v, want Configuration error", err)
	}
}
