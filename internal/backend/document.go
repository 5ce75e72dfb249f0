package backend

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Document is the set of fields written to a document.
type Document map[string]any

type serverTimestamp struct{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return nil, fmt.Errorf("ServerTimestamp must be resolved by the store before encoding")
}

// ServerTimestamp is a field value the store replaces with its own clock at commit
// time, so the value never comes from the writer's clock.
var ServerTimestamp = serverTimestamp{}

// Encoded is a document ready to be committed.
type Encoded struct {
	Data json.RawMessage
	// Order is the createdAt value in unix nanoseconds, 0 when the field is absent.
	Order int64
}

// Encode resolves ServerTimestamp fields against now and encodes the document.
func Encode(data Document, now time.Time) (Encoded, error) {
	resolved := maps.Clone(data)
	if resolved == nil {
		resolved = Document{}
	}
	for key, value := range resolved {
		if _, ok := value.(serverTimestamp); ok {
			resolved[key] = now.UTC()
		}
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return Encoded{}, err
	}

	var order int64
	switch v := resolved[OrderField].(type) {
	case time.Time:
		order = v.UnixNano()
	case nil:
	default:
		return Encoded{}, fmt.Errorf("field %s must be a time, got %T", OrderField, v)
	}

	return Encoded{Data: raw, Order: order}, nil
}
