package queue

import (
	"os"
	"testing"
	"time"

	"github.com/iowaguy/ting-go/pkg/tingtype"
)

func TestFromPairYieldsExactlyOnePair(t *testing.T) {
	pair := tingtype.RelayPair{R1: "AAAA", R2: "BBBB"}
	q := FromPair(pair)

	got, ok := q.Next()
	if !ok || got != pair {
		t.Fatalf("expected %+v, got %+v (ok=%v)", pair, got, ok)
	}

	q.Close()
	if _, ok := q.Next(); ok {
		t.Error("expected queue to report empty after draining and closing")
	}
}

func TestFromFileParsesWhitespaceSeparatedPairs(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pairs")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	f.WriteString("AAAA BBBB\n\nCCCC DDDD\n")
	f.Close()

	q, err := FromFile(f.Name())
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}

	first, ok := q.Next()
	if !ok || first != (tingtype.RelayPair{R1: "AAAA", R2: "BBBB"}) {
		t.Errorf("unexpected first pair: %+v", first)
	}
	second, ok := q.Next()
	if !ok || second != (tingtype.RelayPair{R1: "CCCC", R2: "DDDD"}) {
		t.Errorf("unexpected second pair: %+v", second)
	}
}

func TestFromFileRejectsMalformedLine(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "pairs")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	f.WriteString("AAAA BBBB CCCC\n")
	f.Close()

	if _, err := FromFile(f.Name()); err == nil {
		t.Error("expected error for a line with the wrong field count")
	}
}

func TestNextTimesOutWhenEmpty(t *testing.T) {
	q := New(1)
	start := time.Now()
	_, ok := q.Next()
	elapsed := time.Since(start)

	if ok {
		t.Error("expected Next to report empty on an empty queue")
	}
	if elapsed < ReadTimeout {
		t.Errorf("expected Next to block for the read timeout, returned after %v", elapsed)
	}
}

func TestFromPairsRepeatsInOrder(t *testing.T) {
	pairs := []tingtype.RelayPair{{R1: "A", R2: "B"}, {R1: "C", R2: "D"}}
	q := FromPairs(pairs, 2)

	want := []tingtype.RelayPair{
		{R1: "A", R2: "B"}, {R1: "C", R2: "D"},
		{R1: "A", R2: "B"}, {R1: "C", R2: "D"},
	}
	for i, w := range want {
		got, ok := q.Next()
		if !ok || got != w {
			t.Fatalf("pair %d: got %+v (ok=%v), want %+v", i, got, ok, w)
		}
	}
	if _, ok := q.Next(); ok {
		t.Error("expected queue to be drained after repeats*len(pairs) pairs")
	}
}

func TestPushThenNext(t *testing.T) {
	q := New(2)
	q.Push(tingtype.RelayPair{R1: "X", R2: "Y"})

	got, ok := q.Next()
	if !ok || got.R1 != "X" {
		t.Errorf("unexpected pair: %+v (ok=%v)", got, ok)
	}
}
