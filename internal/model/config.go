package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version      int          `json:"version"` // fixed 0 for now
	Wordlist     string       `json:"wordlist"`
	Suffixes     []string     `json:"suffixes"`
	Combinations Combinations `json:"combinations"`
	Probe        Probe        `json:"probe"`
	Output       Output       `json:"output"`
	Resume       bool         `json:"resume"`
	Service      Service      `json:"service"`
}

// Combinations configures the exhaustive letter-digit generation phase
// which follows the dictionary phase.
type Combinations struct {
	Enabled bool `json:"enabled"`
	Length  int  `json:"length"` // starting name length, grows afterwards
}

// Probe holds the knobs of a single HTTP probe and its classification.
type Probe struct {
	Workers          int      `json:"workers"`
	Timeout          string   `json:"timeout"` // e.g. "5s", "1m30s"
	MinContentLength int      `json:"minContentLength"`
	ParkedPhrases    []string `json:"parkedPhrases"`
	UserAgents       []string `json:"userAgents"`
}

// Output directory and file names. File names are relative to Dir.
type Output struct {
	Dir      string `json:"dir"`
	NotLive  string `json:"notLive"`  // append-only not-live log
	Found    string `json:"found"`    // live set, sorted JSON array
	Index    string `json:"index"`    // sqlite query index
	HTMLPage string `json:"htmlPage"` // derived browsable rendering
}

// Service mode: "manual" runs one scan, "timer" repeats per Schedule.
type Service struct {
	Mode             string `json:"mode"`
	Schedule         string `json:"schedule,omitempty"` // 5-field cron, timer mode only
	ProgressInterval string `json:"progressInterval"`
	Verbose          bool   `json:"verbose"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}

// DefaultConfig mirrors the defaults of the CUE schema, used when writing
// the very first config file.
func DefaultConfig() Config {
	return Config{
		Version:  0,
		Wordlist: "words.txt",
		Suffixes: []string{"com"},
		Combinations: Combinations{
			Enabled: true,
			Length:  5,
		},
		Probe: Probe{
			Workers:          10,
			Timeout:          "5s",
			MinContentLength: 100,
			ParkedPhrases:    DefaultParkedPhrases(),
			UserAgents:       DefaultUserAgents(),
		},
		Output: Output{
			Dir:      ".",
			NotLive:  "empty_domains.txt",
			Found:    "domains.json",
			Index:    "discoveries.db",
			HTMLPage: "found_websites.html",
		},
		Resume: true,
		Service: Service{
			Mode:             ServiceModeManual,
			ProgressInterval: "60s",
			Verbose:          false,
		},
	}
}

// DefaultParkedPhrases is wording typical for parking or for-sale
// placeholder pages. Matched case-insensitively as substrings.
func DefaultParkedPhrases() []string {
	return []string{
		"this domain is parked",
		"buy this domain",
		"for sale",
		"domain parking",
	}
}

// DefaultUserAgents rotate over probes so the prober does not present a
// Go http client signature.
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/95.0.4638.69 Safari/537.36",
		"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:92.0) Gecko/20100101 Firefox/92.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/537.36 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/537.36",
	}
}

// CueErrDetails returns one human readable line per underlying CUE error.
func CueErrDetails(err error) []string {
	errs := cueerrors.Errors(err)
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
