// Package config defines the gateway's persisted configuration document,
// its migration and validation rules, and the resolver that turns a
// requested model string into an ordered candidate chain.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/jedarden/llm-router/pkg/models"
)

// CurrentVersion is the config schema version this build reads and writes.
const CurrentVersion = 2

// Auth scheme names accepted in provider auth specs.
const (
	AuthBearer  = "bearer"
	AuthXAPIKey = "x-api-key"
	AuthHeader  = "header"
	AuthNone    = "none"
)

// Alias routing strategies.
const (
	StrategyAuto                 = "auto"
	StrategyOrdered              = "ordered"
	StrategyRoundRobin           = "round-robin"
	StrategyWeightedRR           = "weighted-rr"
	StrategyQuotaAwareWeightedRR = "quota-aware-weighted-rr"
)

var slugPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9-]*$`)

// AuthSpec describes how a provider authenticates upstream calls. It
// deserializes from either a bare scheme name ("bearer") or an object
// ({"type":"header","name":"x-goog-api-key","prefix":""}).
type AuthSpec struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// UnmarshalJSON accepts both the string and the object form.
func (a *AuthSpec) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Type = s
		return nil
	}
	type plain AuthSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AuthSpec(p)
	return nil
}

// Model is one routable model under a provider.
type Model struct {
	ID             string           `json:"id"`
	Name           string           `json:"name,omitempty"`
	Enabled        *bool            `json:"enabled,omitempty"`
	Aliases        []string         `json:"aliases,omitempty"`
	Formats        []models.Dialect `json:"formats,omitempty"`
	FallbackModels []string         `json:"fallbackModels,omitempty"`
}

// IsEnabled reports whether the model is active. Absent means enabled.
func (m *Model) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// SupportedFormats returns the dialects this model accepts under the given
// provider: the model's declared formats intersected with the provider's,
// or the provider's formats when the model declares none.
func (m *Model) SupportedFormats(p *Provider) []models.Dialect {
	if len(m.Formats) == 0 {
		return p.SupportedFormats()
	}
	var out []models.Dialect
	for _, f := range m.Formats {
		if p.SupportsFormat(f) {
			out = append(out, f)
		}
	}
	return out
}

// RateWindow is the time window of a declared rate-limit bucket.
type RateWindow struct {
	Unit string `json:"unit"`
	Size int    `json:"size"`
}

// RateLimit is a declared per-provider limit bucket. The dispatcher does not
// enforce these; they are carried for external tooling.
type RateLimit struct {
	Models   []string   `json:"models,omitempty"`
	Requests int        `json:"requests"`
	Window   RateWindow `json:"window"`
}

// Provider is a named upstream endpoint.
type Provider struct {
	ID               string                       `json:"id"`
	Name             string                       `json:"name,omitempty"`
	Enabled          *bool                        `json:"enabled,omitempty"`
	BaseURL          string                       `json:"baseUrl,omitempty"`
	BaseURLByFormat  map[models.Dialect]string    `json:"baseUrlByFormat,omitempty"`
	APIKey           string                       `json:"apiKey,omitempty"`
	APIKeyEnv        string                       `json:"apiKeyEnv,omitempty"`
	Auth             *AuthSpec                    `json:"auth,omitempty"`
	AuthByFormat     map[models.Dialect]*AuthSpec `json:"authByFormat,omitempty"`
	Formats          []models.Dialect             `json:"formats,omitempty"`
	Format           models.Dialect               `json:"format,omitempty"`
	Headers          map[string]string            `json:"headers,omitempty"`
	AnthropicVersion string                       `json:"anthropicVersion,omitempty"`
	AnthropicBeta    string                       `json:"anthropicBeta,omitempty"`
	Models           []Model                      `json:"models"`
	RateLimits       []RateLimit                  `json:"rateLimits,omitempty"`
}

// IsEnabled reports whether the provider is active. Absent means enabled.
func (p *Provider) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// SupportedFormats returns the dialects this provider accepts. A provider
// that declares nothing defaults to its preferred format, then to openai.
func (p *Provider) SupportedFormats() []models.Dialect {
	if len(p.Formats) > 0 {
		return p.Formats
	}
	if p.Format.Valid() {
		return []models.Dialect{p.Format}
	}
	return []models.Dialect{models.DialectOpenAI}
}

// SupportsFormat reports whether the provider accepts the given dialect.
func (p *Provider) SupportsFormat(d models.Dialect) bool {
	for _, f := range p.SupportedFormats() {
		if f == d {
			return true
		}
	}
	return false
}

// PreferredFormat returns the dialect used when the source dialect is not
// available.
func (p *Provider) PreferredFormat() models.Dialect {
	if p.Format.Valid() {
		return p.Format
	}
	formats := p.SupportedFormats()
	if len(formats) > 0 {
		return formats[0]
	}
	return models.DialectOpenAI
}

// BaseURLFor returns the base URL for the given dialect, honoring the
// per-dialect override.
func (p *Provider) BaseURLFor(d models.Dialect) string {
	if u, ok := p.BaseURLByFormat[d]; ok && u != "" {
		return u
	}
	return p.BaseURL
}

// AuthFor returns the auth spec for the given dialect: the per-dialect
// override, then the provider-wide auth, then the dialect default
// (openai: bearer, claude: x-api-key).
func (p *Provider) AuthFor(d models.Dialect) AuthSpec {
	if a, ok := p.AuthByFormat[d]; ok && a != nil {
		return *a
	}
	if p.Auth != nil {
		return *p.Auth
	}
	if d == models.DialectClaude {
		return AuthSpec{Type: AuthXAPIKey}
	}
	return AuthSpec{Type: AuthBearer}
}

// ResolveAPIKey returns the provider's API key, reading apiKeyEnv at call
// time so rotated env values take effect without a reload.
func (p *Provider) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// FindModel looks up a model by id or declared alias.
func (p *Provider) FindModel(ref string) *Model {
	for i := range p.Models {
		m := &p.Models[i]
		if m.ID == ref {
			return m
		}
		for _, a := range m.Aliases {
			if a == ref {
				return m
			}
		}
	}
	return nil
}

// AliasTarget is one entry of a model alias's target list. It deserializes
// from either a bare reference string or {"model": "...", "weight": N}.
type AliasTarget struct {
	Model  string `json:"model"`
	Weight int    `json:"weight,omitempty"`
}

// UnmarshalJSON accepts both the string and the object form.
func (t *AliasTarget) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t.Model = s
		return nil
	}
	type plain AliasTarget
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = AliasTarget(p)
	return nil
}

// ModelAlias maps a virtual model name onto weighted provider targets.
type ModelAlias struct {
	Strategy        string                 `json:"strategy,omitempty"`
	Targets         []AliasTarget          `json:"targets"`
	FallbackTargets []AliasTarget          `json:"fallbackTargets,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Config is the persisted configuration document.
type Config struct {
	Version      int                    `json:"version"`
	MasterKey    string                 `json:"masterKey,omitempty"`
	DefaultModel string                 `json:"defaultModel,omitempty"`
	Providers    []Provider             `json:"providers"`
	ModelAliases map[string]ModelAlias  `json:"modelAliases,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ProviderByID returns the provider with the given id, or nil.
func (c *Config) ProviderByID(id string) *Provider {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// EnabledProviders counts the providers that are active.
func (c *Config) EnabledProviders() int {
	n := 0
	for i := range c.Providers {
		if c.Providers[i].IsEnabled() {
			n++
		}
	}
	return n
}

// Parse decodes, migrates, normalizes, and validates a raw config document.
// YAML input is accepted and converted to JSON first so that migration edits
// the same representation it would persist. The returned bytes are the
// migrated JSON document.
func Parse(raw []byte) (*Config, []byte, error) {
	jsonRaw, err := toJSON(raw)
	if err != nil {
		return nil, nil, err
	}
	jsonRaw, _ = Migrate(jsonRaw)

	// An explicit empty masterKey is a config mistake, not "no auth".
	if key := gjson.GetBytes(jsonRaw, "masterKey"); key.Exists() && key.String() == "" {
		return nil, nil, fmt.Errorf("masterKey must not be empty when set")
	}

	var cfg Config
	if err := json.Unmarshal(jsonRaw, &cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, jsonRaw, nil
}

// toJSON passes JSON documents through unchanged and converts YAML to JSON.
func toJSON(raw []byte) ([]byte, error) {
	if isJSONDoc(raw) {
		return raw, nil
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid config document: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid config document: %w", err)
	}
	return out, nil
}

// isJSONDoc reports whether the document starts with a JSON object.
func isJSONDoc(raw []byte) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Migrate upgrades a raw JSON document to CurrentVersion, returning the
// upgraded bytes and whether anything changed. Edits go through sjson so
// fields this build does not model survive a rewrite.
func Migrate(raw []byte) ([]byte, bool) {
	if gjson.GetBytes(raw, "version").Int() >= CurrentVersion {
		return raw, false
	}
	if !gjson.GetBytes(raw, "modelAliases").Exists() {
		raw, _ = sjson.SetRawBytes(raw, "modelAliases", []byte("{}"))
	}
	count := gjson.GetBytes(raw, "providers.#").Int()
	for i := int64(0); i < count; i++ {
		path := fmt.Sprintf("providers.%d.rateLimits", i)
		if !gjson.GetBytes(raw, path).Exists() {
			raw, _ = sjson.SetRawBytes(raw, path, []byte("[]"))
		}
	}
	raw, _ = sjson.SetBytes(raw, "version", CurrentVersion)
	return raw, true
}

// normalize rewrites base URLs: scheme checked, credentials and fragments
// stripped, trailing slash removed.
func (c *Config) normalize() error {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.BaseURL != "" {
			u, err := normalizeBaseURL(p.BaseURL)
			if err != nil {
				return fmt.Errorf("provider %q: %w", p.ID, err)
			}
			p.BaseURL = u
		}
		for d, raw := range p.BaseURLByFormat {
			u, err := normalizeBaseURL(raw)
			if err != nil {
				return fmt.Errorf("provider %q: %w", p.ID, err)
			}
			p.BaseURLByFormat[d] = u
		}
	}
	return nil
}

// normalizeBaseURL validates the scheme and strips userinfo and fragment.
// The raw value is never echoed into the error; it may carry credentials.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid baseUrl")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("baseUrl scheme must be http or https")
	}
	u.User = nil
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// Validate checks structural invariants: slug ids, unique ids, known
// dialects and auth schemes, and that every model reference points at an
// enabled provider and model.
func (c *Config) Validate() error {
	if c.Version > CurrentVersion {
		return fmt.Errorf("config version %d is newer than supported version %d", c.Version, CurrentVersion)
	}

	seen := make(map[string]bool)
	for i := range c.Providers {
		p := &c.Providers[i]
		if !slugPattern.MatchString(p.ID) {
			return fmt.Errorf("provider id %q must start with a lowercase letter and contain only letters, digits, and dashes", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true

		for _, f := range p.Formats {
			if !f.Valid() {
				return fmt.Errorf("provider %q: unknown format %q", p.ID, f)
			}
		}
		if p.Format != "" && !p.Format.Valid() {
			return fmt.Errorf("provider %q: unknown format %q", p.ID, p.Format)
		}
		for d := range p.BaseURLByFormat {
			if !d.Valid() {
				return fmt.Errorf("provider %q: unknown format %q in baseUrlByFormat", p.ID, d)
			}
		}
		if p.Auth != nil {
			if err := validateAuth(*p.Auth); err != nil {
				return fmt.Errorf("provider %q: %w", p.ID, err)
			}
		}
		for d, a := range p.AuthByFormat {
			if !d.Valid() {
				return fmt.Errorf("provider %q: unknown format %q in authByFormat", p.ID, d)
			}
			if a != nil {
				if err := validateAuth(*a); err != nil {
					return fmt.Errorf("provider %q: %w", p.ID, err)
				}
			}
		}
		if p.BaseURL == "" {
			for _, f := range p.SupportedFormats() {
				if p.BaseURLByFormat[f] == "" {
					return fmt.Errorf("provider %q: baseUrl is required", p.ID)
				}
			}
		}

		modelSeen := make(map[string]bool)
		for j := range p.Models {
			m := &p.Models[j]
			if m.ID == "" {
				return fmt.Errorf("provider %q: model id must not be empty", p.ID)
			}
			if modelSeen[m.ID] {
				return fmt.Errorf("provider %q: duplicate model id %q", p.ID, m.ID)
			}
			modelSeen[m.ID] = true
			for _, f := range m.Formats {
				if !f.Valid() {
					return fmt.Errorf("provider %q model %q: unknown format %q", p.ID, m.ID, f)
				}
			}
			if p.IsEnabled() && m.IsEnabled() && len(m.SupportedFormats(p)) == 0 {
				return fmt.Errorf("provider %q model %q: formats do not intersect the provider's", p.ID, m.ID)
			}
		}
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		for j := range p.Models {
			m := &p.Models[j]
			for _, ref := range m.FallbackModels {
				if err := c.checkReference(ref); err != nil {
					return fmt.Errorf("provider %q model %q fallback: %w", p.ID, m.ID, err)
				}
			}
		}
	}

	for id, alias := range c.ModelAliases {
		if id == "" || strings.Contains(id, "/") {
			return fmt.Errorf("alias id %q must be a plain name without '/'", id)
		}
		switch alias.Strategy {
		case "", StrategyAuto, StrategyOrdered, StrategyRoundRobin, StrategyWeightedRR, StrategyQuotaAwareWeightedRR:
		default:
			return fmt.Errorf("alias %q: unknown strategy %q", id, alias.Strategy)
		}
		if len(alias.Targets) == 0 {
			return fmt.Errorf("alias %q: at least one target is required", id)
		}
		for _, t := range alias.Targets {
			if err := c.checkReference(t.Model); err != nil {
				return fmt.Errorf("alias %q: %w", id, err)
			}
		}
		for _, t := range alias.FallbackTargets {
			if err := c.checkReference(t.Model); err != nil {
				return fmt.Errorf("alias %q: %w", id, err)
			}
		}
	}

	if c.DefaultModel != "" {
		if _, ok := c.ModelAliases[c.DefaultModel]; !ok {
			if err := c.checkReference(c.DefaultModel); err != nil {
				return fmt.Errorf("defaultModel: %w", err)
			}
		}
	}

	return nil
}

// validateAuth checks the scheme name and the header-scheme requirements.
func validateAuth(a AuthSpec) error {
	switch a.Type {
	case AuthBearer, AuthXAPIKey, AuthNone:
	case AuthHeader:
		if a.Name == "" {
			return fmt.Errorf("auth type %q requires a header name", AuthHeader)
		}
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	return nil
}

// checkReference verifies a "provider/model" reference names an enabled
// provider and model.
func (c *Config) checkReference(ref string) error {
	providerID, modelID, ok := strings.Cut(ref, "/")
	if !ok || providerID == "" || modelID == "" {
		return fmt.Errorf("reference %q must use the provider/model form", ref)
	}
	p := c.ProviderByID(providerID)
	if p == nil || !p.IsEnabled() {
		return fmt.Errorf("reference %q: provider not found or disabled", ref)
	}
	m := p.FindModel(modelID)
	if m == nil || !m.IsEnabled() {
		return fmt.Errorf("reference %q: model not found or disabled", ref)
	}
	return nil
}

// Warnings returns advisory findings that do not fail validation.
func (c *Config) Warnings() []string {
	var out []string
	if c.MasterKey != "" && len(c.MasterKey) < 16 {
		out = append(out, "masterKey is shorter than 16 characters; prefer a long random value")
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if !p.IsEnabled() {
			continue
		}
		noKey := p.APIKey == "" && p.APIKeyEnv == ""
		if noKey && p.Auth == nil && len(p.AuthByFormat) == 0 {
			out = append(out, fmt.Sprintf("provider %q has no apiKey or apiKeyEnv; upstream calls will be unauthenticated", p.ID))
		}
	}
	return out
}
