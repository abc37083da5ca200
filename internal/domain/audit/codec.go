package audit

import (
	"encoding/json"
	"fmt"
)

// envelope is the JSONB shape stored in audit_logs.changes.
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

var registry = map[string]func() Changes{}

func register(factories ...func() Changes) {
	for _, f := range factories {
		registry[f().Kind()] = f
	}
}

func init() {
	register(
		func() Changes { return &InvoiceCreated{} },
		func() Changes { return &PaymentRecorded{} },
		func() Changes { return &PriceChanged{} },
		func() Changes { return &StockAdjusted{} },
		func() Changes { return &CatalogEntityCreated{} },
		func() Changes { return &CatalogEntityUpdated{} },
		func() Changes { return &ScheduledChangeCreated{} },
		func() Changes { return &ScheduledChangeCancelled{} },
		func() Changes { return &ScheduledChangeApplied{} },
		func() Changes { return &BulkPriceUpdate{} },
		func() Changes { return &PatientCreated{} },
		func() Changes { return &PatientUpdated{} },
		func() Changes { return &PatientDeleted{} },
		func() Changes { return &UserCreated{} },
		func() Changes { return &UserUpdated{} },
		func() Changes { return &UserDeleted{} },
		func() Changes { return &UserLogin{} },
		func() Changes { return &UserLogout{} },
		func() Changes { return &PasswordChanged{} },
	)
}

// Encode serializes c with its kind tag.
func Encode(c Changes) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("audit changes are required")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Kind(), err)
	}
	return json.Marshal(envelope{Kind: c.Kind(), Data: data})
}

// Decode restores a typed payload written by Encode.
func Decode(raw []byte) (Changes, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode audit envelope: %w", err)
	}
	factory, ok := registry[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown audit kind %q", env.Kind)
	}
	c := factory()
	if err := json.Unmarshal(env.Data, c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return c, nil
}

// MarshalJSON renders changes in the tagged form.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	var changes json.RawMessage
	if e.Changes != nil {
		b, err := Encode(e.Changes)
		if err != nil {
			return nil, err
		}
		changes = b
	}
	return json.Marshal(struct {
		plain
		Changes json.RawMessage `json:"changes"`
	}{plain: plain(e), Changes: changes})
}
