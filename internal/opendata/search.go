package opendata

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
)

// SearchParams are the query parameters of a records request. Fields tagged
// odparam map one to one onto the API parameters.
type SearchParams struct {
	// Query is a full-text search, combined with Where.
	Query   string   `mapstructure:"q"`
	Where   string   `mapstructure:"where" odparam:"where"`
	Refine  []string `mapstructure:"refine" odparam:"refine"`
	Exclude []string `mapstructure:"exclude" odparam:"exclude"`
	OrderBy string   `mapstructure:"order-by" odparam:"order_by"`
	Select  string   `mapstructure:"select" odparam:"select"`
	Lang    string   `mapstructure:"lang" odparam:"lang"`

	MaxRecords int `mapstructure:"max-records"`
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	v := reflect.ValueOf(params).Elem()
	for _, field := range reflect.VisibleFields(v.Type()) {
		key := field.Tag.Get("odparam")
		if key == "" {
			continue
		}

		switch value := v.FieldByIndex(field.Index).Interface().(type) {
		case []string:
			for _, item := range value {
				if item = strings.TrimSpace(item); item != "" {
					q.Add(key, item)
				}
			}
		default:
			if s := strings.TrimSpace(fmt.Sprintf("%v", value)); s != "" {
				q.Set(key, s)
			}
		}
	}

	if query := strings.TrimSpace(params.Query); query != "" {
		where := quote(query)
		if existing := q.Get("where"); existing != "" {
			where = fmt.Sprintf("%s AND (%s)", where, existing)
		}
		q.Set("where", where)
	}

	return q
}

// quote renders s as an ODSQL string literal.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
