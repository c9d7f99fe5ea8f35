package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Decision is the outcome of an approval round-trip with the UI
// collaborator (spec §4.4).
type Decision string

const (
	ApproveOnce               Decision = "approve_once"
	ApproveExactSession       Decision = "approve_exact_session"
	ApprovePatternSession     Decision = "approve_pattern_session"
	ApproveExactPersistent    Decision = "approve_exact_persistent"
	ApprovePatternPersistent  Decision = "approve_pattern_persistent"
	Deny                      Decision = "deny"
)

// CacheHit reports which cache (if any) matched, for executor logging.
type CacheHit string

const (
	HitNone              CacheHit = "none"
	HitSessionExact      CacheHit = "session_exact"
	HitPersistentExact   CacheHit = "persistent_exact"
	HitSessionPattern    CacheHit = "session_pattern"
	HitPersistentPattern CacheHit = "persistent_pattern"
)

// persistentFile is the on-disk shape mirrored by ApprovalCache's
// persistent maps (spec §6, `tool_patterns.json`).
type persistentFile struct {
	ExactApprovals []Signature `json:"exact_approvals"`
	Patterns       []*Pattern  `json:"patterns"`
}

// ApprovalCache holds the four approval sets described in spec §3: two
// session sets that live only for the process lifetime, and two
// persistent sets mirrored to a JSON file on every write. Exact entries
// are checked before patterns, session before persistent, matching
// §4.4's precedence rule.
type ApprovalCache struct {
	mu sync.RWMutex

	sessionExact    map[Signature]struct{}
	sessionPatterns []*Pattern

	persistentExact    map[Signature]struct{}
	persistentPatterns []*Pattern

	path string
}

// NewApprovalCache returns an empty cache that mirrors its persistent sets
// to path on every mutation. If path is empty, persistence is disabled
// (in-memory only, useful for tests).
func NewApprovalCache(path string) *ApprovalCache {
	return &ApprovalCache{
		sessionExact:     make(map[Signature]struct{}),
		persistentExact:  make(map[Signature]struct{}),
		path:             path,
	}
}

// Load reads the persistent sets from disk. A missing file is not an
// error (first run); a corrupt file is treated as empty, matching §7's
// State-kind error policy.
func (c *ApprovalCache) Load() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read approval store %s: %w", c.path, err)
	}
	var pf persistentFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistentExact = make(map[Signature]struct{}, len(pf.ExactApprovals))
	for _, sig := range pf.ExactApprovals {
		c.persistentExact[sig] = struct{}{}
	}
	c.persistentPatterns = pf.Patterns
	for _, p := range c.persistentPatterns {
		if p.PatternType == PatternRegex {
			recompiled, err := NewRegexPattern(p.ID, p.ToolName, p.PatternStr)
			if err == nil {
				p.compiled = recompiled.compiled
			}
		} else {
			recompiled, err := NewWildcardPattern(p.ID, p.ToolName, p.PatternStr)
			if err == nil {
				p.compiled = recompiled.compiled
			}
		}
	}
	return nil
}

// Check reports whether sig is pre-approved, and by which cache. Pattern
// hits bump MatchCount/LastUsed on the matching pattern.
func (c *ApprovalCache) Check(sig Signature) CacheHit {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessionExact[sig]; ok {
		return HitSessionExact
	}
	if _, ok := c.persistentExact[sig]; ok {
		return HitPersistentExact
	}
	for _, p := range c.sessionPatterns {
		if p.Matches(sig) {
			p.MatchCount++
			p.LastUsed = time.Now()
			return HitSessionPattern
		}
	}
	for _, p := range c.persistentPatterns {
		if p.Matches(sig) {
			p.MatchCount++
			p.LastUsed = time.Now()
			if err := c.persistLocked(); err != nil {
				_ = err // best-effort; match count persistence is not load-bearing
			}
			return HitPersistentPattern
		}
	}
	return HitNone
}

// Apply records an approval decision. ApproveOnce and Deny are one-shot
// and touch no cache. Persistent variants also rewrite the JSON store
// atomically (write-temp-then-rename).
func (c *ApprovalCache) Apply(decision Decision, sig Signature, pat *Pattern) error {
	c.mu.Lock()
	switch decision {
	case ApproveExactSession:
		c.sessionExact[sig] = struct{}{}
	case ApprovePatternSession:
		if pat != nil {
			c.sessionPatterns = append(c.sessionPatterns, pat)
		}
	case ApproveExactPersistent:
		c.persistentExact[sig] = struct{}{}
	case ApprovePatternPersistent:
		if pat != nil {
			c.persistentPatterns = append(c.persistentPatterns, pat)
		}
	case ApproveOnce, Deny:
		// one-shot; no cache mutation
	}
	needsPersist := decision == ApproveExactPersistent || decision == ApprovePatternPersistent
	var err error
	if needsPersist {
		err = c.persistLocked()
	}
	c.mu.Unlock()
	return err
}

// persistLocked writes the persistent sets to c.path via a temp file plus
// rename, so a crash mid-write never leaves a truncated store. Caller
// must hold c.mu.
func (c *ApprovalCache) persistLocked() error {
	if c.path == "" {
		return nil
	}
	exact := make([]Signature, 0, len(c.persistentExact))
	for sig := range c.persistentExact {
		exact = append(exact, sig)
	}
	pf := persistentFile{ExactApprovals: exact, Patterns: c.persistentPatterns}
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal approval store: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".tool_patterns-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp approval store: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp approval store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp approval store: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename approval store: %w", err)
	}
	return nil
}
