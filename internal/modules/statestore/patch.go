package statestore

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
)

type OptionalString struct {
	Set   bool
	Value string
}

func String(v string) OptionalString { return OptionalString{Set: true, Value: v} }

type OptionalTopic struct {
	Set   bool
	Value types.Topic
}

func Topic(v types.Topic) OptionalTopic { return OptionalTopic{Set: true, Value: v} }

type OptionalConsent struct {
	Set   bool
	Value types.ConsentState
}

func Consent(v types.ConsentState) OptionalConsent { return OptionalConsent{Set: true, Value: v} }

// OptionalContact replaces ContactInfo when Set. A nil Value clears it.
type OptionalContact struct {
	Set   bool
	Value *types.ContactDetails
}

func Contact(v *types.ContactDetails) OptionalContact {
	return OptionalContact{Set: true, Value: v.Clone()}
}

// StatePatch is a partial update of a ConversationState. Unset fields are left
// alone. Context is merged key by key; a nil value deletes the key.
type StatePatch struct {
	Topic   OptionalTopic
	Stage   OptionalString
	Consent OptionalConsent
	Contact OptionalContact
	Context map[string]any
}

// Apply merges the patch into s and advances the message counter. It is the
// only place ConversationState fields change during a turn.
func (p StatePatch) Apply(s *types.ConversationState, now time.Time) error {
	if p.Topic.Set {
		if !p.Topic.Value.Valid() {
			return fmt.Errorf("unknown topic %q", p.Topic.Value)
		}
		s.CurrentTopic = p.Topic.Value
	}
	if p.Stage.Set {
		s.CurrentStage = p.Stage.Value
	}
	if p.Consent.Set {
		s.ConsentStatus = p.Consent.Value
	}
	if p.Contact.Set {
		s.ContactInfo = p.Contact.Value.Clone()
	}
	if len(p.Context) > 0 {
		merged, err := mergeContext(s.Context, p.Context)
		if err != nil {
			return err
		}
		s.Context = merged
	}
	s.MessageCount++
	s.LastMessageTimeMs = now.UnixMilli()
	return nil
}

func mergeContext(base datatypes.JSONMap, patch map[string]any) (datatypes.JSONMap, error) {
	out := datatypes.JSONMap{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		nv, err := jsonValue(v)
		if err != nil {
			return nil, fmt.Errorf("context key %s: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

// jsonValue round-trips v through JSON so in-memory state looks exactly like
// state read back from the database.
func jsonValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode reads a context key back into a typed value.
func Decode(s *types.ConversationState, key string, dst any) (bool, error) {
	v, ok := s.ContextValue(key)
	if !ok || v == nil {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}
