// Package pricing resolves per-token model tariffs from the OpenRouter
// catalog, with a 24h disk cache and fuzzy model-name matching.
package pricing

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/theirongolddev/oburn/internal/stats"
	"github.com/theirongolddev/oburn/internal/storage"
)

const (
	defaultCatalogURL = "https://openrouter.ai/api/v1/models"
	requestTimeout    = 30 * time.Second
	maxBodySize       = 16 << 20 // 16 MB
	cacheMaxAge       = 24 * time.Hour
	cacheFileName     = "pricing.json"
)

// ModelPricing holds per-token USD rates for one model.
type ModelPricing struct {
	Prompt     float64
	Completion float64
	Reasoning  float64
	CacheRead  float64
	CacheWrite float64
}

// Resolver memoizes a model→tariff table built from the catalog. The
// table is loaded once; a lookup miss triggers one synchronous refetch
// that is consulted for that call only.
type Resolver struct {
	url       string
	cachePath string
	http      *http.Client

	once  sync.Once
	mu    sync.Mutex
	table map[string]ModelPricing
}

// NewResolver creates a resolver against the default catalog endpoint
// and cache location.
func NewResolver() *Resolver {
	return &Resolver{
		url:       defaultCatalogURL,
		cachePath: filepath.Join(storage.CacheDir(), cacheFileName),
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// NewResolverWith creates a resolver with an explicit catalog URL and
// cache file path.
func NewResolverWith(url, cachePath string) *Resolver {
	return &Resolver{
		url:       url,
		cachePath: cachePath,
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// Lookup returns the tariff for a model name, or false when no catalog
// entry matches closely enough.
func (r *Resolver) Lookup(model string) (ModelPricing, bool) {
	r.once.Do(func() {
		r.mu.Lock()
		r.table = r.load(false)
		r.mu.Unlock()
	})

	r.mu.Lock()
	table := r.table
	r.mu.Unlock()

	if p, ok := lookupIn(table, model); ok {
		return p, true
	}

	// Newly listed models miss the memoized table. One live fetch
	// covers them without invalidating the table for other callers.
	live := r.load(true)
	if len(live) == 0 {
		return ModelPricing{}, false
	}
	return lookupIn(live, model)
}

// EstimateCost prices a token bundle at the model's catalog rates.
func (r *Resolver) EstimateCost(model string, t stats.Tokens) (float64, bool) {
	p, ok := r.Lookup(model)
	if !ok {
		return 0, false
	}
	cost := float64(t.Input)*p.Prompt +
		float64(t.Output)*p.Completion +
		float64(t.Reasoning)*p.Reasoning +
		float64(t.CacheRead)*p.CacheRead +
		float64(t.CacheWrite)*p.CacheWrite
	return cost, true
}

// load builds the tariff table: fresh disk cache, then the network,
// then a stale disk cache as last resort. bypassCache skips the
// freshness check and goes straight to the network.
func (r *Resolver) load(bypassCache bool) map[string]ModelPricing {
	if !bypassCache && r.cacheFresh() {
		if table := parseCatalog(readFile(r.cachePath)); len(table) > 0 {
			return table
		}
	}

	if body := r.fetch(); len(body) > 0 {
		if table := parseCatalog(body); len(table) > 0 {
			if err := os.MkdirAll(filepath.Dir(r.cachePath), 0o755); err == nil {
				_ = os.WriteFile(r.cachePath, body, 0o644)
			}
			return table
		}
	}

	if table := parseCatalog(readFile(r.cachePath)); len(table) > 0 {
		return table
	}
	return map[string]ModelPricing{}
}

func (r *Resolver) cacheFresh() bool {
	fi, err := os.Stat(r.cachePath)
	if err != nil {
		return false
	}
	return time.Since(fi.ModTime()) < cacheMaxAge
}

func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}

func (r *Resolver) fetch() []byte {
	req, err := http.NewRequest(http.MethodGet, r.url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil
	}
	return body
}

// tariff accepts the catalog's string-or-number rate encoding.
type tariff float64

func (t *tariff) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*t = tariff(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var v float64
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			*t = tariff(v)
		}
		return nil
	}
	return nil
}

func (t tariff) rate() float64 {
	if t < 0 {
		return 0
	}
	return float64(t)
}

type catalogModel struct {
	ID      string `json:"id"`
	Pricing struct {
		Prompt     tariff `json:"prompt"`
		Completion tariff `json:"completion"`
		Reasoning  tariff `json:"reasoning"`
		CacheRead  tariff `json:"input_cache_read"`
		CacheWrite tariff `json:"input_cache_write"`
	} `json:"pricing"`
}

// parseCatalog keys each model under its lowercased full id and its
// bare slug. First entry wins on slug collisions.
func parseCatalog(body []byte) map[string]ModelPricing {
	if len(body) == 0 {
		return nil
	}
	var catalog struct {
		Data []catalogModel `json:"data"`
	}
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil
	}

	table := make(map[string]ModelPricing, len(catalog.Data)*2)
	for _, m := range catalog.Data {
		if m.ID == "" {
			continue
		}
		completion := m.Pricing.Completion.rate()
		reasoning := m.Pricing.Reasoning.rate()
		if reasoning == 0 {
			reasoning = completion
		}
		p := ModelPricing{
			Prompt:     m.Pricing.Prompt.rate(),
			Completion: completion,
			Reasoning:  reasoning,
			CacheRead:  m.Pricing.CacheRead.rate(),
			CacheWrite: m.Pricing.CacheWrite.rate(),
		}

		full := strings.ToLower(m.ID)
		slug := full
		if i := strings.LastIndexByte(full, '/'); i >= 0 {
			slug = full[i+1:]
		}
		if _, ok := table[full]; !ok {
			table[full] = p
		}
		if _, ok := table[slug]; !ok {
			table[slug] = p
		}
	}
	return table
}

// lookupIn tries progressively looser strategies: exact full id, bare
// slug, date-suffix-stripped slug, then fuzzy matching against the
// slug keys.
func lookupIn(table map[string]ModelPricing, model string) (ModelPricing, bool) {
	if len(table) == 0 {
		return ModelPricing{}, false
	}

	input := strings.ToLower(strings.TrimSpace(model))
	slug := input
	if i := strings.LastIndexByte(input, '/'); i >= 0 {
		slug = input[i+1:]
	}

	if p, ok := table[input]; ok {
		return p, true
	}
	if p, ok := table[slug]; ok {
		return p, true
	}

	stripped := stripDateSuffix(slug)
	if stripped != slug {
		if p, ok := table[stripped]; ok {
			return p, true
		}
	}

	local := normalize(stripped)
	if local == "" {
		return ModelPricing{}, false
	}
	var (
		bestScore int
		best      ModelPricing
		found     bool
	)
	for key, p := range table {
		if strings.ContainsRune(key, '/') {
			continue
		}
		score := fuzzyScore(local, normalize(stripDateSuffix(key)))
		if score > bestScore {
			bestScore = score
			best = p
			found = true
		}
	}

	minRequired := (max(len(local), 3) * 6) / 10
	if found && bestScore >= minRequired {
		return best, true
	}
	return ModelPricing{}, false
}

// normalize drops separator characters so spelling variants compare.
func normalize(slug string) string {
	var b strings.Builder
	b.Grow(len(slug))
	for _, c := range slug {
		if c == '-' || c == '.' || c == ':' {
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// fuzzyScore is byte-level LCS length, with equality and prefix
// shortcuts scoring double.
func fuzzyScore(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return len(a) * 2
	}
	if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
		return min(len(a), len(b)) * 2
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			if a[i] == b[j] {
				curr[j+1] = prev[j] + 1
			} else {
				curr[j+1] = max(prev[j+1], curr[j])
			}
		}
		copy(prev, curr)
		for j := range curr {
			curr[j] = 0
		}
	}
	return prev[len(b)]
}

// stripDateSuffix removes a trailing -MMDD or -YYYYMMDD version date.
func stripDateSuffix(slug string) string {
	pos := strings.LastIndexByte(slug, '-')
	if pos < 0 {
		return slug
	}
	tail := slug[pos+1:]
	if looksLikeYYYYMMDD(tail) || looksLikeMMDD(tail) {
		return slug[:pos]
	}
	return slug
}

func looksLikeMMDD(tail string) bool {
	if len(tail) != 4 || !allDigits(tail) {
		return false
	}
	mm := digits2(tail[0:2])
	dd := digits2(tail[2:4])
	return mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31
}

func looksLikeYYYYMMDD(tail string) bool {
	if len(tail) != 8 || !allDigits(tail) {
		return false
	}
	yyyy := digits2(tail[0:2])*100 + digits2(tail[2:4])
	mm := digits2(tail[4:6])
	dd := digits2(tail[6:8])
	return yyyy >= 2020 && yyyy <= 2100 && mm >= 1 && mm <= 12 && dd >= 1 && dd <= 31
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func digits2(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
