package domain

import "time"

// MutablePatch carries the fields update_mutable is allowed to change.
// Only non-nil fields are applied; callback fields travel together since
// CallbackConfig's variant must stay coherent (invariant 4).
type MutablePatch struct {
	ExecuteAt      *time.Time
	CallbackConfig *CallbackConfig
	Metadata       *[]byte
}

// Apply returns a copy of t with the patch applied, validated for
// invariant 4 before being handed back. It does not touch Status,
// UpdatedAt is left to the caller (the repository sets it atomically).
func (p MutablePatch) Apply(t Timer) (Timer, error) {
	out := t
	if p.ExecuteAt != nil {
		out.ExecuteAt = *p.ExecuteAt
	}
	if p.CallbackConfig != nil {
		out.CallbackConfig = *p.CallbackConfig
	}
	if p.Metadata != nil {
		out.Metadata = *p.Metadata
	}
	if err := out.CallbackConfig.Validate(); err != nil {
		return Timer{}, err
	}
	return out, nil
}
