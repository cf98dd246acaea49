package core

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"tracechain/pkg/domain"
)

var hashTokenPattern = regexp.MustCompile(`^TKN-[0-9A-F]{16}$`)

func TestGenerateTokenOwnerOrHandler(t *testing.T) {
	svc, sink := staffedService(t, "")
	ctx := context.Background()

	_, _, err := svc.GenerateToken(ctx, testStranger, testLot)
	expectKind(t, err, domain.ErrUnauthorized)
	_, _, err = svc.GenerateToken(ctx, testOwner, "LOT-Z")
	expectKind(t, err, domain.ErrUnknownLot)

	if _, err := svc.CaptureObservation(ctx, testCarrier, testLot, -20, ""); err != nil {
		t.Fatalf("capture: %v", err)
	}
	sink.reset()
	token, _, err := svc.GenerateToken(ctx, testCarrier, testLot)
	if err != nil {
		t.Fatalf("handler generate: %v", err)
	}
	if !hashTokenPattern.MatchString(token) {
		t.Fatalf("unexpected token format %q", token)
	}
	lot, err := svc.ResolveToken(ctx, token)
	if err != nil || lot != testLot {
		t.Fatalf("resolve: %q %v", lot, err)
	}
	if types := sink.types(); len(types) != 1 || types[0] != domain.EventTokenGenerated {
		t.Fatalf("unexpected events %v", types)
	}
	if sink.events[0].Data["token"] != token {
		t.Fatalf("event carries wrong token %+v", sink.events[0])
	}
}

func TestGenerateTokenKeepsHistory(t *testing.T) {
	svc, _ := staffedService(t, "")
	ctx := context.Background()

	first, _, err := svc.GenerateToken(ctx, testOwner, testLot)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, _, err := svc.GenerateToken(ctx, testOwner, testLot)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first == second {
		t.Fatalf("tokens issued at distinct times must differ")
	}
	for _, token := range []string{first, second} {
		if lot, err := svc.ResolveToken(ctx, token); err != nil || lot != testLot {
			t.Fatalf("token %s must still resolve: %q %v", token, lot, err)
		}
	}
	view, _ := svc.ConsumerLookupByLot(ctx, testLot)
	if view.LatestToken != second {
		t.Fatalf("expected latest token %s, got %s", second, view.LatestToken)
	}
}

func TestGenerateTokenTransfersHandler(t *testing.T) {
	svc, _ := staffedService(t, "")
	ctx := context.Background()
	if _, err := svc.UpdateStage(ctx, testVendor, testLot, domain.StageVendor); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, _, err := svc.GenerateToken(ctx, testOwner, testLot); err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, _, err := svc.GenerateToken(ctx, testVendor, testLot)
	expectKind(t, err, domain.ErrUnauthorized)
}

func TestResolveTokenNeverIssued(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ResolveToken(context.Background(), "TKN-0000000000000000")
	expectKind(t, err, domain.ErrInvalidToken)
}

type constantTokens string

func (c constantTokens) Generate(string, string, time.Time) (string, error) { return string(c), nil }

func TestGenerateTokenRepeatedValueForSameLot(t *testing.T) {
	svc, _ := staffedService(t, "", WithTokenGenerator(constantTokens("TKN-FIXED")))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		token, _, err := svc.GenerateToken(ctx, testOwner, testLot)
		if err != nil || token != "TKN-FIXED" {
			t.Fatalf("attempt %d: %q %v", i, token, err)
		}
	}
	if _, _, err := svc.Register(ctx, testOwner, "LOT-B", "n", "o", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.GenerateToken(ctx, testOwner, "LOT-B"); err == nil {
		t.Fatalf("expected collision with another lot to fail")
	}
	if view, _ := svc.ConsumerLookupByLot(ctx, "LOT-B"); view.LatestToken != "" {
		t.Fatalf("failed generation must not set a token")
	}
}

func TestHashTokenGeneratorIsDeterministic(t *testing.T) {
	at := time.Unix(1700000000, 42)
	gen := HashTokenGenerator{Domain: "tracechain"}
	a, _ := gen.Generate("LOT-A", "owner", at)
	b, _ := gen.Generate("LOT-A", "owner", at)
	if a != b {
		t.Fatalf("same inputs must produce the same token")
	}
	for _, other := range []struct{ lot, caller string }{{"LOT-B", "owner"}, {"LOT-A", "retailer"}} {
		c, _ := gen.Generate(other.lot, other.caller, at)
		if c == a {
			t.Fatalf("inputs %+v collided", other)
		}
	}
	d, _ := HashTokenGenerator{Domain: "other"}.Generate("LOT-A", "owner", at)
	if d == a {
		t.Fatalf("domain tag must separate token spaces")
	}
	// field separators prevent ("ab","c") and ("a","bc") from colliding
	e, _ := gen.Generate("ab", "c", at)
	f, _ := gen.Generate("a", "bc", at)
	if e == f {
		t.Fatalf("field boundaries are ambiguous")
	}
}

func TestRandomTokenGenerator(t *testing.T) {
	gen := RandomTokenGenerator{Reader: bytes.NewReader(bytes.Repeat([]byte{0xab}, 16))}
	token, err := gen.Generate("", "", time.Time{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token != "TKN-"+strings.Repeat("AB", 16) {
		t.Fatalf("unexpected token %s", token)
	}
	short := RandomTokenGenerator{Reader: bytes.NewReader([]byte{1, 2})}
	if _, err := short.Generate("", "", time.Time{}); err == nil {
		t.Fatalf("expected short entropy read to fail")
	}
	live, err := RandomTokenGenerator{}.Generate("", "", time.Time{})
	if err != nil || len(live) != len("TKN-")+32 {
		t.Fatalf("unexpected crypto token %q %v", live, err)
	}
}

func TestNewTokenGenerator(t *testing.T) {
	if gen, err := NewTokenGenerator("", "d"); err != nil || gen.(HashTokenGenerator).Domain != "d" {
		t.Fatalf("expected hash default, got %#v %v", gen, err)
	}
	if gen, err := NewTokenGenerator("RANDOM", ""); err != nil {
		t.Fatalf("random: %v", err)
	} else if _, ok := gen.(RandomTokenGenerator); !ok {
		t.Fatalf("expected random generator, got %T", gen)
	}
	if _, err := NewTokenGenerator("uuid", ""); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}

type failingTokens struct{}

func (failingTokens) Generate(string, string, time.Time) (string, error) {
	return "", errors.New("entropy exhausted")
}

func TestGenerateTokenGeneratorFailure(t *testing.T) {
	svc, sink := staffedService(t, "", WithTokenGenerator(failingTokens{}))
	if _, _, err := svc.GenerateToken(context.Background(), testOwner, testLot); err == nil {
		t.Fatalf("expected generator failure")
	}
	if len(sink.types()) != 0 {
		t.Fatalf("failure must not notify")
	}
}
