package dataguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/oarkflow/dataguard/logger"
)

// ============================================================================
// FIELD MASKING
// ============================================================================

// MaskStrategy selects how a sensitive value is reduced.
type MaskStrategy string

const (
	MaskFull     MaskStrategy = "full"     // fixed redacted placeholder
	MaskPartial  MaskStrategy = "partial"  // type-specific partial reveal
	MaskHash     MaskStrategy = "hash"     // stable digest, supports equality
	MaskTruncate MaskStrategy = "truncate" // fixed-length prefix + ellipsis
	MaskCustom   MaskStrategy = "custom"   // delegates to MaskFunc
)

// MaskFunc is a caller-supplied masking function for custom strategies. It
// also takes precedence over the generic partial reveal when set on a
// partial-strategy rule.
type MaskFunc func(value string) string

// MaskingRule declares how values of one sensitive data type are masked and
// which permissions exempt a caller from masking. Exemptions are OR'd: any
// single held permission returns the raw value.
type MaskingRule struct {
	DataType          string       `json:"data_type" yaml:"data_type"`
	Strategy          MaskStrategy `json:"strategy" yaml:"strategy"`
	MaskFunc          MaskFunc     `json:"-" yaml:"-"`
	ExemptPermissions []Permission `json:"exempt_permissions,omitempty" yaml:"exempt_permissions,omitempty"`
}

const (
	redactedPlaceholder = "[REDACTED]"
	hashPrefix          = "sha256:"
	truncateKeep        = 8
	maskRune            = '*'
)

// partialSpec describes the generic partial reveal for one data type: how
// many characters stay visible at each end. Presets are data, not code; new
// sensitive types are registered, not hard-coded.
type partialSpec struct {
	KeepFront int
	KeepBack  int
}

// Built-in presets. Phone keeps the country/area prefix and last four
// digits; account numbers reveal only the tail; passwords and API keys
// reveal nothing.
func defaultPartialSpecs() map[string]partialSpec {
	return map[string]partialSpec{
		"identity": {KeepFront: 0, KeepBack: 4},
		"phone":    {KeepFront: 4, KeepBack: 4},
		"email":    {KeepFront: 1, KeepBack: 0}, // local part; domain stays visible
		"address":  {KeepFront: 6, KeepBack: 0},
		"account":  {KeepFront: 0, KeepBack: 4},
		"password": {KeepFront: 0, KeepBack: 0},
		"apikey":   {KeepFront: 0, KeepBack: 0},
	}
}

// MaskingRegistry holds masking rules keyed by sensitive data type and
// applies them, honoring permission-based exemptions through the resolver.
// Masking is opt-in per type: values of unregistered types pass through.
type MaskingRegistry struct {
	mu       sync.RWMutex
	rules    map[string]*MaskingRule
	partials map[string]partialSpec
	resolver *PermissionResolver
	log      logger.Logger
}

func NewMaskingRegistry(resolver *PermissionResolver, log logger.Logger) *MaskingRegistry {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &MaskingRegistry{
		rules:    make(map[string]*MaskingRule),
		partials: defaultPartialSpecs(),
		resolver: resolver,
		log:      log,
	}
}

// RegisterRule adds or replaces the rule for its data type.
func (m *MaskingRegistry) RegisterRule(rule *MaskingRule) {
	if rule == nil || rule.DataType == "" {
		return
	}
	m.mu.Lock()
	m.rules[rule.DataType] = rule
	m.mu.Unlock()
}

// RegisterPartialSpec adds or replaces the partial-reveal boundaries for a
// data type.
func (m *MaskingRegistry) RegisterPartialSpec(dataType string, keepFront, keepBack int) {
	m.mu.Lock()
	m.partials[dataType] = partialSpec{KeepFront: keepFront, KeepBack: keepBack}
	m.mu.Unlock()
}

// Rule returns the registered rule for a data type, or nil.
func (m *MaskingRegistry) Rule(dataType string) *MaskingRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rules[dataType]
}

// Mask applies the rule registered for dataType to value on behalf of
// userID. Empty values and unregistered types pass through unchanged. A
// caller holding any exemption permission receives the raw value. Resolver
// failures during the exemption check fail closed: the value is masked.
func (m *MaskingRegistry) Mask(ctx context.Context, value any, dataType, userID string) any {
	s := coerceString(value)
	if s == "" {
		return value
	}
	rule := m.Rule(dataType)
	if rule == nil {
		return value
	}
	return m.maskWith(ctx, rule, s, value, userID)
}

// MaskWithRule applies a specific rule (e.g. one attached inline to a field
// access control) instead of a registered one. Empty values pass through.
func (m *MaskingRegistry) MaskWithRule(ctx context.Context, value any, rule *MaskingRule, userID string) any {
	s := coerceString(value)
	if s == "" || rule == nil {
		return value
	}
	return m.maskWith(ctx, rule, s, value, userID)
}

func (m *MaskingRegistry) maskWith(ctx context.Context, rule *MaskingRule, s string, value any, userID string) any {
	if len(rule.ExemptPermissions) > 0 && m.resolver != nil {
		perms, err := m.resolver.Resolve(ctx, userID)
		if err != nil {
			m.log.Error("exemption check failed, masking value", "user_id", userID, "data_type", rule.DataType, "error", err.Error())
		} else if perms.HasAny(rule.ExemptPermissions) {
			return value
		}
	}
	return m.apply(rule, rule.DataType, s)
}

func (m *MaskingRegistry) apply(rule *MaskingRule, dataType, s string) string {
	switch rule.Strategy {
	case MaskFull:
		return redactedPlaceholder
	case MaskHash:
		// already-hashed values stay stable so re-masking is a no-op
		if strings.HasPrefix(s, hashPrefix) {
			return s
		}
		sum := sha256.Sum256([]byte(s))
		return hashPrefix + hex.EncodeToString(sum[:])
	case MaskTruncate:
		if len(s) <= truncateKeep {
			return s
		}
		return s[:truncateKeep] + "..."
	case MaskCustom:
		if rule.MaskFunc == nil {
			m.log.Error("custom masking rule without function, redacting", "data_type", dataType)
			return redactedPlaceholder
		}
		return rule.MaskFunc(s)
	case MaskPartial:
		if rule.MaskFunc != nil {
			return rule.MaskFunc(s)
		}
		return m.partialMask(dataType, s)
	}
	m.log.Error("unknown masking strategy, redacting", "data_type", dataType, "strategy", string(rule.Strategy))
	return redactedPlaceholder
}

func (m *MaskingRegistry) partialMask(dataType, s string) string {
	if dataType == "email" {
		return maskEmail(s)
	}
	m.mu.RLock()
	spec, ok := m.partials[dataType]
	m.mu.RUnlock()
	if !ok {
		spec = partialSpec{}
	}
	return partialReveal(s, spec.KeepFront, spec.KeepBack)
}

// partialReveal keeps front and back characters and stars the middle. Values
// too short to hide anything are fully starred instead of leaked.
func partialReveal(s string, front, back int) string {
	runes := []rune(s)
	if front+back >= len(runes) {
		return strings.Repeat(string(maskRune), len(runes))
	}
	var b strings.Builder
	b.Grow(len(runes))
	for i, r := range runes {
		if i < front || i >= len(runes)-back {
			b.WriteRune(r)
		} else {
			b.WriteRune(maskRune)
		}
	}
	return b.String()
}

// maskEmail keeps the first character of the local part and the full domain.
func maskEmail(s string) string {
	at := strings.LastIndex(s, "@")
	if at <= 0 {
		return partialReveal(s, 1, 0)
	}
	return partialReveal(s[:at], 1, 0) + s[at:]
}
