package vast

import (
	"errors"
	"testing"
)

func TestSourceUnionTags(t *testing.T) {
	t.Parallel()

	s := SourceURL("https://ads.example.com/vast")
	if url, ok := s.URL(); !ok || url != "https://ads.example.com/vast" {
		t.Fatalf("expected URL variant, got %q ok=%v", url, ok)
	}
	if _, ok := s.Record(); ok {
		t.Fatal("URL source must not report a record")
	}
	if _, ok := s.Prebuilt(); ok {
		t.Fatal("URL source must not report an upstream")
	}

	rec := SourceRecord(SourceConfig{URL: "https://ads.example.com/vast", Params: map[string]string{"w": "640"}})
	cfg, ok := rec.Record()
	if !ok || cfg.URL != "https://ads.example.com/vast" || cfg.Params["w"] != "640" {
		t.Fatalf("unexpected record %+v ok=%v", cfg, ok)
	}
}

func TestFetchModeValid(t *testing.T) {
	t.Parallel()

	for _, mode := range []FetchMode{ModeParallel, ModeSequential, ModeRace} {
		if !mode.Valid() {
			t.Fatalf("expected %s to be valid", mode)
		}
	}
	if FetchMode("turbo").Valid() {
		t.Fatal("expected unknown mode to be invalid")
	}
}

func TestFetchResultAddErrorAppends(t *testing.T) {
	t.Parallel()

	r := NewFetchResult()
	r.AddError("http://a", PhaseFetch, errors.New("boom"))
	r.AddError("http://b", PhaseParse, errors.New("bad xml"))
	if len(r.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(r.Errors))
	}
	if r.Errors[0].Source != "http://a" || r.Errors[0].Phase != PhaseFetch {
		t.Fatalf("unexpected first error %+v", r.Errors[0])
	}
	if r.Errors[1].Message() != "bad xml" {
		t.Fatalf("unexpected message %q", r.Errors[1].Message())
	}
}
