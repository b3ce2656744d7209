package environ_test

import (
	"slices"
	"testing"

	"yanode/internal/environ"
)

func lookupFrom(values map[string]string) environ.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestBuildLayersOverridesAmbientDefaults(t *testing.T) {
	ambient := lookupFrom(map[string]string{
		environ.GSBURL:       "tcp://10.0.0.1:1",
		environ.APIURL:       "http://10.0.0.1:2",
		environ.NetworkGroup: "mainnet",
	})
	got := environ.New().
		APIURL("http://127.0.0.1:9999").
		AppKey("secret").
		Build(ambient)

	cases := map[string]string{
		environ.APIURL:       "http://127.0.0.1:9999",
		environ.GSBURL:       "tcp://10.0.0.1:1",
		environ.NetworkGroup: "mainnet",
		environ.NetBindURL:   "udp://0.0.0.0:12503",
		environ.AppKey:       "secret",
	}
	for key, want := range cases {
		if got[key] != want {
			t.Fatalf("%s: got %q want %q", key, got[key], want)
		}
	}
}

func TestBuildNeverReplacesAmbientWithDefault(t *testing.T) {
	for key := range environ.Defaults {
		got := environ.New().Build(lookupFrom(map[string]string{key: "ambient"}))
		if got[key] != "ambient" {
			t.Fatalf("%s: default replaced ambient value, got %q", key, got[key])
		}
	}
}

func TestBuildIgnoresEmptyOverrides(t *testing.T) {
	got := environ.New().RelayHost("").Build(lookupFrom(nil))
	if got[environ.NetRelayHost] != environ.Defaults[environ.NetRelayHost] {
		t.Fatalf("expected default relay host, got %q", got[environ.NetRelayHost])
	}
	if _, ok := got[environ.AppKey]; ok {
		t.Fatal("expected no app key entry without override")
	}
}

func TestBuildIsPure(t *testing.T) {
	b := environ.New().YagnaDataDir("/data")
	first := b.Build(lookupFrom(nil))
	first[environ.YagnaDataDir] = "mutated"
	second := b.Build(lookupFrom(nil))
	if second[environ.YagnaDataDir] != "/data" {
		t.Fatalf("mutation of a result leaked into builder: %q", second[environ.YagnaDataDir])
	}
	if environ.Defaults[environ.GSBURL] != "tcp://127.0.0.1:12501" {
		t.Fatalf("defaults mutated: %q", environ.Defaults[environ.GSBURL])
	}
}

func TestMergeOverlaysAndSorts(t *testing.T) {
	out := environ.Merge(
		[]string{"PATH=/bin", "YAGNA_APPKEY=old", "BROKEN"},
		map[string]string{"YAGNA_APPKEY": "new", "DATA_DIR": "/p"},
	)
	want := []string{"DATA_DIR=/p", "PATH=/bin", "YAGNA_APPKEY=new"}
	if !slices.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestRedactedMasksCredentials(t *testing.T) {
	env := map[string]string{environ.AppKey: "k", environ.GSBURL: "tcp://x"}
	red := environ.Redacted(env)
	if red[environ.AppKey] != "***" || red[environ.GSBURL] != "tcp://x" {
		t.Fatalf("unexpected redaction %v", red)
	}
	if env[environ.AppKey] != "k" {
		t.Fatal("Redacted mutated its input")
	}
}
