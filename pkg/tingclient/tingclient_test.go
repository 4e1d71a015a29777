package tingclient

import (
	"strings"
	"testing"
	"time"

	"github.com/iowaguy/ting-go/pkg/circuit"
	"github.com/iowaguy/ting-go/pkg/logger"
	"github.com/iowaguy/ting-go/pkg/tingtype"
	"github.com/iowaguy/ting-go/pkg/torctl"
)

func TestTemplateGenProducesThreeCorrectlyShapedCircuits(t *testing.T) {
	ctrl := torctl.NewMockController()
	c := New(ctrl, "WWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWW", "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ",
		tingtype.Endpoint{Host: "127.0.0.1", Port: 16667}, circuit.DefaultConfig(), logger.NewDefault())

	pair := tingtype.RelayPair{R1: "R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1R1", R2: "R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2R2"}
	tmpl := c.TemplateGen(pair)

	if len(tmpl.X.Relays()) != 3 {
		t.Errorf("expected X to have 3 hops, got %d", len(tmpl.X.Relays()))
	}
	if len(tmpl.Y.Relays()) != 3 {
		t.Errorf("expected Y to have 3 hops, got %d", len(tmpl.Y.Relays()))
	}
	if len(tmpl.XY.Relays()) != 4 {
		t.Errorf("expected XY to have 4 hops, got %d", len(tmpl.XY.Relays()))
	}

	for _, circ := range tmpl.All() {
		relays := circ.Relays()
		if relays[0] != "WWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWWW" {
			t.Errorf("expected first hop W, got %s", relays[0])
		}
		if relays[len(relays)-1] != "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ" {
			t.Errorf("expected last hop Z, got %s", relays[len(relays)-1])
		}
	}

	if tmpl.X.Leg() != tingtype.LegX || tmpl.Y.Leg() != tingtype.LegY || tmpl.XY.Leg() != tingtype.LegXY {
		t.Error("expected legs tagged X, Y, XY respectively")
	}
}

func TestLoadRelayListTestSource(t *testing.T) {
	resolver, err := LoadRelayList("test", time.Hour)
	if err != nil {
		t.Fatalf("LoadRelayList failed: %v", err)
	}
	if resolver.Count() == 0 {
		t.Error("expected the test fixture to have at least one relay")
	}
	if _, ok := resolver.ResolveFingerprint("127.0.0.1"); !ok {
		t.Error("expected 127.0.0.1 to resolve in the test fixture")
	}
	if _, ok := resolver.ResolveFingerprint("10.0.0.1"); ok {
		t.Error("expected an unknown IP to fail resolution")
	}
}

func TestLoadRelayListInternetSourceIsStub(t *testing.T) {
	_, err := LoadRelayList("internet", 24*time.Hour)
	if err == nil {
		t.Fatal("expected internet source to report an explicit stub error")
	}
}

func TestLoadConsensusFromFile(t *testing.T) {
	doc := `{"relays":[{"fingerprint":"ABCD","or_addresses":["1.2.3.4:443"]}]}`
	resolver, err := loadConsensus(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("loadConsensus failed: %v", err)
	}
	fp, ok := resolver.ResolveFingerprint("1.2.3.4")
	if !ok || fp != "ABCD" {
		t.Errorf("expected fingerprint ABCD for 1.2.3.4, got %q (ok=%v)", fp, ok)
	}
}
