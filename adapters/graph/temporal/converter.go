package temporal

import (
	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"

	"github.com/coriolis-labs/conductor/checkpoint"
	"github.com/coriolis-labs/conductor/contextstore"
	"github.com/coriolis-labs/conductor/state"
)

// stateJSONPayloadConverter wraps Temporal's JSON payload converter and
// routes state.State through checkpoint.Encode/Decode instead of plain
// struct marshaling. state.State carries an unexported contextstore.Store
// field; Temporal's default JSON converter would silently serialize it as
// "{}" and drop every context value on the wire. Grounded on the teacher's
// own agentJSONPayloadConverter (runtime/agent/engine/temporal/data_converter.go),
// which solves the identical "generated type carries state the default JSON
// converter cannot round-trip" problem for planner.ToolResult by special-casing
// the type in ToPayload/FromPayload and falling through to the JSON converter
// for everything else.
type stateJSONPayloadConverter struct {
	*converter.JSONPayloadConverter
	lookup contextstore.SchemaLookup
}

// NewStateDataConverter returns a Temporal data converter that lets workflow
// and activity functions accept/return state.State directly. lookup resolves
// context-type schemas for the restored store; pass the same registry the
// turn's capabilities and infra nodes use.
func NewStateDataConverter(lookup contextstore.SchemaLookup) converter.DataConverter {
	base := converter.NewJSONPayloadConverter()
	return converter.NewCompositeDataConverter(
		converter.NewNilPayloadConverter(),
		converter.NewByteSlicePayloadConverter(),
		converter.NewProtoPayloadConverter(),
		converter.NewProtoJSONPayloadConverter(),
		&stateJSONPayloadConverter{JSONPayloadConverter: base, lookup: lookup},
	)
}

func (c *stateJSONPayloadConverter) ToPayload(value any) (*commonpb.Payload, error) {
	switch v := value.(type) {
	case state.State:
		b, err := checkpoint.Encode(v)
		if err != nil {
			return nil, err
		}
		return c.JSONPayloadConverter.ToPayload(b)
	case *state.State:
		if v == nil {
			return c.JSONPayloadConverter.ToPayload(value)
		}
		return c.ToPayload(*v)
	default:
		return c.JSONPayloadConverter.ToPayload(value)
	}
}

func (c *stateJSONPayloadConverter) FromPayload(p *commonpb.Payload, valuePtr any) error {
	switch v := valuePtr.(type) {
	case *state.State:
		var b []byte
		if err := c.JSONPayloadConverter.FromPayload(p, &b); err != nil {
			return err
		}
		s, err := checkpoint.Decode(b, c.lookup)
		if err != nil {
			return err
		}
		*v = s
		return nil
	default:
		return c.JSONPayloadConverter.FromPayload(p, valuePtr)
	}
}
