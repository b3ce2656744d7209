// Package environ composes the environment handed to a supervised daemon.
//
// Values are layered: explicit overrides win over the ambient process
// environment, which wins over built-in defaults. An ambient value is never
// replaced unless the caller overrode that key. Composition is a pure function
// of the builder and the lookup it is given.
package environ

import (
	"maps"
	"os"
	"slices"
	"strings"
)

// Keys understood by the network and provider daemons.
const (
	GSBURL             = "GSB_URL"
	APIURL             = "YAGNA_API_URL"
	NetBindURL         = "YA_NET_BIND_URL"
	NetBroadcastSize   = "YA_NET_BROADCAST_SIZE"
	NetRelayHost       = "YA_NET_RELAY_HOST"
	NetworkGroup       = "YA_PAYMENT_NETWORK_GROUP"
	AppKey             = "YAGNA_APPKEY"
	AutoconfAppKey     = "YAGNA_AUTOCONF_APPKEY"
	AutoconfIDSecret   = "YAGNA_AUTOCONF_ID_SECRET"
	YagnaDataDir       = "YAGNA_DATADIR"
	ProviderDataDir    = "DATA_DIR"
	ExeUnitPath        = "EXE_UNIT_PATH"
	SSLCertFile        = "SSL_CERT_FILE"
	MinAgreementExpiry = "MIN_AGREEMENT_EXPIRATION"
)

// Defaults are applied only when neither an override nor an ambient value exists.
var Defaults = map[string]string{
	GSBURL:           "tcp://127.0.0.1:12501",
	APIURL:           "http://127.0.0.1:12502",
	NetworkGroup:     "testnet",
	NetBindURL:       "udp://0.0.0.0:12503",
	NetBroadcastSize: "20",
	NetRelayHost:     "yacn2a.dev.golem.network:7477",
}

// LookupFunc resolves an ambient variable, matching os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Builder accumulates explicit overrides. The zero value is not usable; call New.
type Builder struct {
	defaults  map[string]string
	overrides map[string]string
}

// New returns a builder seeded with Defaults.
func New() *Builder {
	return &Builder{defaults: maps.Clone(Defaults), overrides: map[string]string{}}
}

// NewWithDefaults returns a builder with a caller supplied default layer.
func NewWithDefaults(defaults map[string]string) *Builder {
	return &Builder{defaults: maps.Clone(defaults), overrides: map[string]string{}}
}

// Set records an explicit override. Empty values are ignored so optional
// configuration can be passed through unconditionally.
func (b *Builder) Set(key, value string) *Builder {
	if strings.TrimSpace(value) == "" {
		return b
	}
	b.overrides[key] = value
	return b
}

func (b *Builder) GSBURL(v string) *Builder          { return b.Set(GSBURL, v) }
func (b *Builder) APIURL(v string) *Builder          { return b.Set(APIURL, v) }
func (b *Builder) NetBindURL(v string) *Builder      { return b.Set(NetBindURL, v) }
func (b *Builder) RelayHost(v string) *Builder       { return b.Set(NetRelayHost, v) }
func (b *Builder) NetworkGroup(v string) *Builder    { return b.Set(NetworkGroup, v) }
func (b *Builder) AppKey(v string) *Builder          { return b.Set(AppKey, v) }
func (b *Builder) AutoconfAppKey(v string) *Builder  { return b.Set(AutoconfAppKey, v) }
func (b *Builder) PrivateKey(v string) *Builder      { return b.Set(AutoconfIDSecret, v) }
func (b *Builder) YagnaDataDir(v string) *Builder    { return b.Set(YagnaDataDir, v) }
func (b *Builder) ProviderDataDir(v string) *Builder { return b.Set(ProviderDataDir, v) }
func (b *Builder) ExeUnitPath(v string) *Builder     { return b.Set(ExeUnitPath, v) }
func (b *Builder) SSLCertFile(v string) *Builder     { return b.Set(SSLCertFile, v) }

// Build resolves every default and overridden key against lookup. Keys the
// caller never mentioned and that have no default are left out; the ambient
// environment still carries them when the result is merged for exec.
func (b *Builder) Build(lookup LookupFunc) map[string]string {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	out := make(map[string]string, len(b.defaults)+len(b.overrides))
	for key, value := range b.defaults {
		if ambient, ok := lookup(key); ok {
			out[key] = ambient
			continue
		}
		out[key] = value
	}
	for key, value := range b.overrides {
		out[key] = value
	}
	return out
}

// Environ builds against the real process environment and returns the
// KEY=VALUE list for exec.Cmd.Env.
func (b *Builder) Environ() []string {
	return Merge(os.Environ(), b.Build(os.LookupEnv))
}

// Merge overlays composed onto an ambient KEY=VALUE list. Ambient entries for
// keys present in composed are replaced; the output is sorted by key.
func Merge(ambient []string, composed map[string]string) []string {
	merged := make(map[string]string, len(ambient)+len(composed))
	for _, entry := range ambient {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		merged[key] = value
	}
	maps.Copy(merged, composed)

	out := make([]string, 0, len(merged))
	for _, key := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, key+"="+merged[key])
	}
	return out
}

// Redacted returns a copy of env with credential values masked, suitable for
// logging.
func Redacted(env map[string]string) map[string]string {
	out := maps.Clone(env)
	for _, key := range []string{AppKey, AutoconfAppKey, AutoconfIDSecret} {
		if _, ok := out[key]; ok {
			out[key] = "***"
		}
	}
	return out
}
