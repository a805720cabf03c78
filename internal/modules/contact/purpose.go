package contact

import (
	"fmt"
	"sort"

	"github.com/yungbote/careline-backend/internal/config"
	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

const (
	PurposeNurseCallback     = "nurse_callback"
	PurposeCrisis            = "crisis"
	PurposeCallbackChat      = "callback_chat"
	PurposeCallbackChatEmail = "callback_chat_email"
)

type Purpose struct {
	Name        string
	ConsentType string
	Required    []types.ContactField
	Optional    []types.ContactField
	Lenient     bool
	AllowSkip   bool
	MaxAttempts int
}

// Fields lists required then optional fields in declared order.
func (p Purpose) Fields() []types.ContactField {
	out := make([]types.ContactField, 0, len(p.Required)+len(p.Optional))
	out = append(out, p.Required...)
	return append(out, p.Optional...)
}

func (p Purpose) IsRequired(f types.ContactField) bool {
	for _, r := range p.Required {
		if r == f {
			return true
		}
	}
	return false
}

func (p Purpose) Allows(f types.ContactField) bool {
	for _, r := range p.Fields() {
		if r == f {
			return true
		}
	}
	return false
}

func PurposesFromConfig(cfg *config.Triage) (map[string]Purpose, error) {
	out := make(map[string]Purpose, len(cfg.Purposes))
	names := make([]string, 0, len(cfg.Purposes))
	for name := range cfg.Purposes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := cfg.Purposes[name]
		p := Purpose{
			Name:        name,
			ConsentType: pc.ConsentType,
			Lenient:     pc.Validation == "lenient",
			AllowSkip:   pc.AllowSkip,
			MaxAttempts: pc.MaxAttempts,
		}
		var err error
		if p.Required, err = parseFields(name, pc.RequiredFields); err != nil {
			return nil, err
		}
		if p.Optional, err = parseFields(name, pc.OptionalFields); err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

func parseFields(purpose string, in []string) ([]types.ContactField, error) {
	out := make([]types.ContactField, 0, len(in))
	for _, s := range in {
		f := types.ContactField(s)
		switch f {
		case types.FieldName, types.FieldPhone, types.FieldEmail,
			types.FieldPreferredContact, types.FieldBestTimeToCall, types.FieldAlternativeContact:
			out = append(out, f)
		default:
			return nil, fmt.Errorf("purpose %s: unknown field %q", purpose, s)
		}
	}
	return out, nil
}
