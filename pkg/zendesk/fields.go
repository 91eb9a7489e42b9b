package zendesk

import (
	"context"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	gojson "github.com/goccy/go-json"
)

// Custom field definition resources.
const (
	UserFields         = "user_fields"
	OrganizationFields = "organization_fields"
)

// CustomField is an account-specific field definition.
type CustomField struct {
	Key     string        `json:"key"`
	Title   string        `json:"title"`
	Type    string        `json:"type"`
	Options []FieldOption `json:"custom_field_options"`
}

// FieldOption is one choice of a dropdown field.
type FieldOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CustomFields lists every definition of resource (UserFields or
// OrganizationFields).
func (c *Client) CustomFields(ctx context.Context, resource string) ([]CustomField, error) {
	var fields []CustomField
	for page, err := range c.OffsetPages(ctx, "/api/v2/"+resource+".json", nil) {
		if err != nil {
			return nil, err
		}
		items, _ := page[resource].([]any)
		for _, item := range items {
			raw, err := gojson.Marshal(item)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode custom field")
			}
			var f CustomField
			if err := gojson.Unmarshal(raw, &f); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode custom field")
			}
			fields = append(fields, f)
		}
	}
	return fields, nil
}
