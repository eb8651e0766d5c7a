package progress

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		line    string
		total   float64
		percent float64
		ok      bool
	}{
		{"out_time_us=30000000", 60, 50, true},
		{"out_time_us=60000000", 60, 100, true},
		{"out_time_us=90000000", 60, 100, true}, // encoder overshoot clamps
		{"out_time_us=-100", 60, 0, true},
		{"out_time_us= 30000000", 60, 50, true},
		{"out_time_us=30000000", 0, 0, true}, // unknown duration holds at zero
		{"frame=25", 60, 0, false},
		{"progress=continue", 60, 0, false},
		{"out_time=00:00:30.000000", 60, 0, false},
		{"out_time_us=abc", 60, 0, false},
		{"out_time_us", 60, 0, false},
		{"", 60, 0, false},
	}
	for _, tc := range cases {
		percent, ok := ParseLine(tc.line, tc.total)
		if ok != tc.ok || !almostEqual(percent, tc.percent) {
			t.Errorf("ParseLine(%q, %v) = (%v, %v), want (%v, %v)",
				tc.line, tc.total, percent, ok, tc.percent, tc.ok)
		}
	}
}

func TestListenerReceivesSamples(t *testing.T) {
	samples := make(chan float64, 16)
	l, err := NewListener(10, func(p float64) { samples <- p })
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	endpoint := l.Endpoint()
	if !strings.HasPrefix(endpoint, "tcp://127.0.0.1:") {
		t.Fatalf("Endpoint() = %q, want tcp://127.0.0.1:<port>", endpoint)
	}

	conn, err := net.Dial("tcp", strings.TrimPrefix(endpoint, "tcp://"))
	if err != nil {
		t.Fatalf("dial %s: %v", endpoint, err)
	}
	report := "frame=120\nout_time_us=2500000\nprogress=continue\nout_time_us=5000000\nprogress=end\n"
	if _, err := conn.Write([]byte(report)); err != nil {
		t.Fatalf("write report: %v", err)
	}
	conn.Close()

	want := []float64{25, 50}
	for _, w := range want {
		select {
		case got := <-samples:
			if !almostEqual(got, w) {
				t.Errorf("sample = %v, want %v", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for sample %v", w)
		}
	}
	select {
	case extra := <-samples:
		t.Errorf("unexpected extra sample %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListenerCloseWithoutConnection(t *testing.T) {
	l, err := NewListener(10, func(float64) {})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- l.Close() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close hung with no encoder connection")
	}
}

func TestListenerCloseIsIdempotent(t *testing.T) {
	l, err := NewListener(10, func(float64) {})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
