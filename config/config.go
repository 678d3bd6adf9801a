// Package config holds the settings of a bridge.
package config

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/ethbs/lookup"
)

// Config is the configuration of a bridge.
type Config struct {
	// Initial values of the user-editable state.
	PseudoQuery string `json:"pseudo_query"`
	TokenHolder string `json:"token_holder"`
	ENSName     string `json:"ens_name"`

	Token         string `json:"token"` // ERC-20 contract queried by token-balance lookups
	TokenDecimals int    `json:"token_decimals"`
	ENSRegistry   string `json:"ens_registry"`

	// Bridges are the multiaddrs of bridge nodes to connect to at startup.
	Bridges []string `json:"bridges"`

	PeerRefresh    Duration `json:"peer_refresh"`
	MaxInFlight    int      `json:"max_in_flight"` // outstanding header writes
	LookupCacheTTL Duration `json:"lookup_cache_ttl"`

	// Store is a blob-store description in the form accepted by store.FromConfig.
	Store map[string]interface{} `json:"store"`
}

// Duration is a time.Duration written in JSON as a string such as "2s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Default is the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		PseudoQuery:   "/eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5/balance",
		TokenHolder:   "0x1d805bc00b8fa3c96ae6c8fa97b2fd24b19a9801",
		ENSName:       "ethereum.eth",
		Token:         "0x6810e776880c02933d47db1b9fc05908e5386b96",
		TokenDecimals: 18,
		ENSRegistry:   "0x314159265dd8dbb310642f98f50c066173c1259b",
		Bridges: []string{
			"/dns4/ipfs.lab.metamask.io/tcp/443/wss/ipfs/QmdcCVdmHsA1s69GhQZrszpnb3wmtRwv81jojAurhsH9cz",
			"/dns4/fox.musteka.la/tcp/443/wss/ipfs/Qmc7etyUd9tEa3ZBD3LCTMDL96qcMi8cKfHEiLt5nhVdVC",
			"/dns4/bat.musteka.la/tcp/443/wss/ipfs/QmPaBC5Lmfj7vctVxRPcKvfZds9Zk96dgjgthvg4Dgf7at",
			"/dns4/monkey.musteka.la/tcp/443/wss/ipfs/QmZDfxSycZxaaYyrCyHdNEiip3wmxTgriPzEYETEn9Z6K3",
			"/dns4/panda.musteka.la/tcp/443/wss/ipfs/QmUGARsthjG4EJBCrYzkuCESjn5G2akmmuawKPbZrFM3E5",
			"/dns4/tiger.musteka.la/tcp/443/wss/ipfs/QmXFdPj3FuVpkgmNHNTFitkp4DSmVuF6HxNX6tCZr4LFz9",
		},
		PeerRefresh:    Duration(2 * time.Second),
		MaxInFlight:    8,
		LookupCacheTTL: Duration(time.Minute),
		Store:          map[string]interface{}{"type": "mem"},
	}
}

// Decode reads a JSON configuration from r.
// Fields absent from the input keep their Default values.
// Numbers inside the store section decode as json.Number.
func Decode(r io.Reader) (*Config, error) {
	conf := Default()

	// Decoding into a non-nil map merges rather than replaces.
	conf.Store = nil

	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(conf); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if conf.Store == nil {
		conf.Store = Default().Store
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks conf for usable values.
// Bridge addresses are not checked here:
// one that cannot be parsed is logged and skipped at startup.
func (conf *Config) Validate() error {
	for _, a := range []struct{ name, addr string }{
		{"token", conf.Token},
		{"ens_registry", conf.ENSRegistry},
	} {
		if _, err := lookup.ParseAddress(a.addr); err != nil {
			return errors.Wrapf(err, "config %s", a.name)
		}
	}
	if conf.TokenDecimals < 0 || conf.TokenDecimals > 77 {
		return errors.Errorf("config token_decimals %d out of range", conf.TokenDecimals)
	}
	if conf.PeerRefresh <= 0 {
		return errors.New("config peer_refresh must be positive")
	}
	if conf.MaxInFlight < 1 {
		return errors.New("config max_in_flight must be at least 1")
	}
	if conf.LookupCacheTTL <= 0 {
		return errors.New("config lookup_cache_ttl must be positive")
	}
	if _, ok := conf.Store["type"].(string); !ok {
		return errors.New(`config store section missing "type"`)
	}
	return nil
}
