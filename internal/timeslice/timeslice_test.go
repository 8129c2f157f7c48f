package timeslice

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

var (
	kindDownsample = RegisterKind("downsample", FlagPass)
	kindUpload     = RegisterKind("upload", FlagUpload)
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	func() {
		closer, err := StartRecording(&buf)
		if err != nil {
			t.Fatalf("StartRecording: %v", err)
		}
		defer closer.Close()

		if _, err := StartRecording(&bytes.Buffer{}); !errors.Is(err, ErrAlreadyOpen) {
			t.Errorf("second StartRecording error = %v, want ErrAlreadyOpen", err)
		}

		Record(kindDownsample, 2*time.Millisecond)
		Record(kindUpload, 5*time.Millisecond)
		Record(kindDownsample, 4*time.Millisecond)
	}()

	if buf.Len() < pageSize {
		t.Fatalf("log shorter than header page: %d bytes", buf.Len())
	}

	var names []string
	err := ReadAllRecords(bytes.NewReader(buf.Bytes()), func(name string, flags Flags, d time.Duration) error {
		names = append(names, name+":"+flags.String())
		return nil
	})
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	want := []string{"downsample:pass", "upload:upload", "downsample:pass"}
	if len(names) != len(want) {
		t.Fatalf("records = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, names[i], want[i])
		}
	}

	summary, err := Summarize(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if s := summary[0]; s.Name != "downsample" || s.Count != 2 || s.Total != 6*time.Millisecond || s.Max != 4*time.Millisecond || s.Mean() != 3*time.Millisecond {
		t.Errorf("summary[0] = %+v", s)
	}
}

func TestRecordWithoutRecording(t *testing.T) {
	// Must not block or panic.
	Record(kindUpload, time.Second)
	s := NewState()
	s.Record(kindUpload)
	s.Mark()
}

func TestReadBadMagic(t *testing.T) {
	data := make([]byte, pageSize)
	if err := ReadAllRecords(bytes.NewReader(data), func(string, Flags, time.Duration) error { return nil }); err == nil {
		t.Error("expected error for bad magic")
	}
}

func BenchmarkRecord(b *testing.B) {
	var buf bytes.Buffer
	closer, err := StartRecording(&buf)
	if err != nil {
		b.Fatalf("StartRecording: %v", err)
	}
	for b.Loop() {
		Record(kindDownsample, time.Millisecond)
	}
	if err := closer.Close(); err != nil {
		b.Fatalf("Close: %v", err)
	}
}
