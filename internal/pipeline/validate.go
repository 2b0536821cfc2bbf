package pipeline

import (
	"github.com/yungbote/neurod/internal/platform/apierr"
	"github.com/yungbote/neurod/internal/tensor"
)

// Validate checks inputs against a handler's declared input_schema
// (field name -> declared type) per spec.md §4.7 step 2, grounded on
// citrine_daemon/core/validator.py's "validation doubles as
// deserialization": a field declared "tensor" is decoded in place, so a
// successful Validate call leaves inputs[field] holding a tensor.Tensor
// rather than the raw wire map the caller sent.
func Validate(inputs map[string]any, schema map[string]string) error {
	for field, kind := range schema {
		val, present := inputs[field]
		if !present {
			return apierr.New(apierr.ValidationError, "missing required field: "+field, nil)
		}
		switch kind {
		case "tensor":
			raw, ok := val.(map[string]any)
			if !ok {
				return apierr.New(apierr.ValidationError, "field "+field+" must be a tensor object", nil)
			}
			t, err := tensor.Decode(raw)
			if err != nil {
				return err
			}
			inputs[field] = t
		case "string":
			if _, ok := val.(string); !ok {
				return apierr.New(apierr.ValidationError, "field "+field+" must be a string", nil)
			}
		case "number":
			if _, ok := val.(float64); !ok {
				return apierr.New(apierr.ValidationError, "field "+field+" must be a number", nil)
			}
		case "bool":
			if _, ok := val.(bool); !ok {
				return apierr.New(apierr.ValidationError, "field "+field+" must be a boolean", nil)
			}
		}
	}
	return nil
}
