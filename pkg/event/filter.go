package event

import "github.com/provshare/provshare/pkg/keys"

// Filter is a query over the broadcast medium. Predicates compose by method
// chaining into a single value; zero fields do not constrain. The tag keys
// the medium can match on are the closed set defined in this package, which
// keeps the tag literals out of the rest of the codebase.
type Filter struct {
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Tags    map[string][]string `json:"tags,omitempty"`
	Since   int64               `json:"since,omitempty"`
	Until   int64               `json:"until,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

// NewFilter returns an unconstrained filter.
func NewFilter() Filter {
	return Filter{}
}

// ByAuthor constrains to events authored by pk.
func (f Filter) ByAuthor(pk keys.PublicKey) Filter {
	f.Authors = append(f.Authors, pk.String())
	return f
}

// ByKind constrains to the given kind.
func (f Filter) ByKind(kind int) Filter {
	f.Kinds = append(f.Kinds, kind)
	return f
}

// ByRecipientTag constrains to events addressed to pk.
func (f Filter) ByRecipientTag(pk keys.PublicKey) Filter {
	return f.byTag(TagRecipient, pk.String())
}

// ByAppTag constrains to this application's events.
func (f Filter) ByAppTag() Filter {
	return f.byTag(TagApp, App)
}

// ByOperationTag constrains to one protocol operation.
func (f Filter) ByOperationTag(op string) Filter {
	return f.byTag(TagOperation, op)
}

// ByFingerprintTag constrains to events carrying the given current
// fingerprint.
func (f Filter) ByFingerprintTag(fingerprint string) Filter {
	return f.byTag(TagFingerprint, fingerprint)
}

// ByOriginalTag constrains to events referencing the given original
// fingerprint.
func (f Filter) ByOriginalTag(fingerprint string) Filter {
	return f.byTag(TagOriginal, fingerprint)
}

// ByIdentifierTag constrains to one replaceable-record discriminator.
func (f Filter) ByIdentifierTag(d string) Filter {
	return f.byTag(TagIdentifier, d)
}

// WithSince constrains to events created at or after ts.
func (f Filter) WithSince(ts int64) Filter {
	f.Since = ts
	return f
}

// WithUntil constrains to events created at or before ts.
func (f Filter) WithUntil(ts int64) Filter {
	f.Until = ts
	return f
}

// WithLimit caps the number of results.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

func (f Filter) byTag(key, value string) Filter {
	tags := make(map[string][]string, len(f.Tags)+1)
	for k, v := range f.Tags {
		tags[k] = v
	}
	tags[key] = append(append([]string(nil), tags[key]...), value)
	f.Tags = tags
	return f
}

// Matches reports whether an event satisfies every predicate of the filter.
// Limit is a result cap, not a per-event predicate, and is ignored here.
func (f Filter) Matches(e *Event) bool {
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until != 0 && e.CreatedAt > f.Until {
		return false
	}
	for key, accepted := range f.Tags {
		value, ok := e.TagValue(key)
		if !ok || !containsString(accepted, value) {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}
