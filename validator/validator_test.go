package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnosuke/feed-audit/types"
)

const feedURL = "https://shop.example/feed.xml"

func validFields() map[string][]string {
	return map[string][]string{
		"url":     {"https://shop.example/p/1"},
		"name":    {"Kettle"},
		"picture": {"https://www.shop.example/i/1.jpg"},
		"price":   {"1 990,00"},
	}
}

func fieldsOf(issues []types.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Field)
	}
	return out
}

func TestValidate_ValidOffer(t *testing.T) {
	assert.Empty(t, Validate(validFields(), feedURL, Options{}))
}

func TestValidate_MissingName(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string][]string)
	}{
		{name: "only name missing", mutate: func(f map[string][]string) {}},
		{name: "other fields broken too", mutate: func(f map[string][]string) {
			f["url"] = []string{"https://other.example/p/1"}
			f["price"] = []string{"abc"}
		}},
		{name: "everything missing", mutate: func(f map[string][]string) {
			for k := range f {
				delete(f, k)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			delete(fields, "name")
			tt.mutate(fields)

			count := 0
			for _, is := range Validate(fields, feedURL, Options{}) {
				if is.Field == "name" {
					count++
				}
			}
			assert.Equal(t, 1, count)
		})
	}
}

func TestValidate_URL(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		fields := validFields()
		delete(fields, "url")
		issues := Validate(fields, feedURL, Options{})
		require.Len(t, issues, 1)
		assert.Equal(t, "url", issues[0].Field)
		require.NotNil(t, issues[0].Details)
	})

	t.Run("blank and foreign values", func(t *testing.T) {
		fields := validFields()
		fields["url"] = []string{"https://shop.example/ok", "  ", "https://other.example/p/1"}
		issues := Validate(fields, feedURL, Options{})
		require.Len(t, issues, 2)

		assert.Equal(t, "url field is empty", issues[0].Message)
		assert.Nil(t, issues[0].Details)
		assert.Equal(t, "url is not on domain shop.example", issues[1].Message)
		require.NotNil(t, issues[1].Details)
		assert.Contains(t, *issues[1].Details, "https://other.example/p/1")
	})

	t.Run("subdomain depends on options", func(t *testing.T) {
		fields := validFields()
		fields["url"] = []string{"https://m.shop.example/p/1"}
		assert.Len(t, Validate(fields, feedURL, Options{}), 1)
		assert.Empty(t, Validate(fields, feedURL, Options{AllowSubdomains: true}))
	})
}

func TestValidate_Picture(t *testing.T) {
	fields := validFields()
	fields["picture"] = []string{"https://cdn.example/1.jpg", ""}
	issues := Validate(fields, feedURL, Options{})
	require.Len(t, issues, 2)
	assert.Equal(t, "picture is hosted on a foreign domain", issues[0].Message)
	assert.Equal(t, "picture field is empty", issues[1].Message)

	fields["picture"] = []string{" ", ""}
	issues = Validate(fields, feedURL, Options{})
	require.Len(t, issues, 1)
	assert.Equal(t, "picture", issues[0].Field)
}

func TestValidate_Price(t *testing.T) {
	t.Run("non numeric cites raw value", func(t *testing.T) {
		fields := validFields()
		fields["price"] = []string{"abc"}
		issues := Validate(fields, feedURL, Options{})
		require.Len(t, issues, 1)
		assert.Equal(t, "price", issues[0].Field)
		require.NotNil(t, issues[0].Details)
		assert.Contains(t, *issues[0].Details, "abc")
	})

	t.Run("blank", func(t *testing.T) {
		fields := validFields()
		fields["price"] = []string{""}
		issues := Validate(fields, feedURL, Options{})
		require.Len(t, issues, 1)
		assert.Equal(t, "price field is empty", issues[0].Message)
	})

	t.Run("last valid value is the reference", func(t *testing.T) {
		fields := validFields()
		fields["price"] = []string{"500", "x", "100"}
		fields["oldprice"] = []string{"200"}
		issues := Validate(fields, feedURL, Options{})
		assert.Equal(t, []string{"price"}, fieldsOf(issues))
	})
}

func TestValidate_OldPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    []string
		oldprice []string
		expected []string
	}{
		{name: "equal to price", price: []string{"100"}, oldprice: []string{"100"}, expected: []string{"oldprice"}},
		{name: "lower than price", price: []string{"100"}, oldprice: []string{"99.99"}, expected: []string{"oldprice"}},
		{name: "greater than price", price: []string{"100"}, oldprice: []string{"150"}, expected: []string{}},
		{name: "blank", price: []string{"100"}, oldprice: []string{" "}, expected: []string{"oldprice"}},
		{name: "not a number", price: []string{"100"}, oldprice: []string{"n/a"}, expected: []string{"oldprice"}},
		{name: "no usable price", price: []string{"abc"}, oldprice: []string{"10"}, expected: []string{"price"}},
		{name: "each value checked", price: []string{"100"}, oldprice: []string{"150", "50", ""}, expected: []string{"oldprice", "oldprice"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			fields["price"] = tt.price
			fields["oldprice"] = tt.oldprice
			assert.Equal(t, tt.expected, fieldsOf(Validate(fields, feedURL, Options{})))
		})
	}
}

func TestValidate_Order(t *testing.T) {
	fields := map[string][]string{
		"oldprice": {"1"},
		"price":    {"5"},
		"picture":  {"https://other.example/a.jpg"},
		"url":      {"https://other.example/a"},
	}
	assert.Equal(t, []string{"url", "name", "picture", "oldprice"}, fieldsOf(Validate(fields, feedURL, Options{})))
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw      string
		expected float64
		wantErr  bool
	}{
		{raw: "1 234,50", expected: 1234.50},
		{raw: "1\u00a0234,50", expected: 1234.50},
		{raw: "$19.99", expected: 19.99},
		{raw: "49.90 EUR", expected: 49.90},
		{raw: "1,5", expected: 1.5},
		{raw: "-3", expected: -3},
		{raw: "1,234.50", expected: 1234.50},
		{raw: "1.2.3", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePrice(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}
