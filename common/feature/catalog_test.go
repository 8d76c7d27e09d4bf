package feature

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()

	typ, err := c.ResolveType("frequency-hertz")
	require.NoError(t, err)
	assert.Equal(t, TypeInteger, typ)

	typ, err = c.ResolveType("type")
	require.NoError(t, err)
	assert.Equal(t, TypeEnum, typ)

	prefix, ok := c.CodePrefix("keyboard")
	assert.True(t, ok)
	assert.Equal(t, "T", prefix)
}

func TestResolveType_Unknown(t *testing.T) {
	_, err := Default().ResolveType("flux-capacitance")

	var unknown *UnknownFeatureError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "flux-capacitance", unknown.Name)
}

func TestValidate(t *testing.T) {
	c := Default()

	tests := []struct {
		name    string
		feature string
		raw     any
		want    Value
		wantErr bool
	}{
		{"enum member", "type", "case", EnumValue("case"), false},
		{"enum non member", "type", "spaceship", nil, true},
		{"enum wrong type", "type", 3, nil, true},
		{"int from json float", "capacity-byte", float64(666), IntValue(666), false},
		{"int from json number", "capacity-byte", json.Number("1024"), IntValue(1024), false},
		{"int from string", "frequency-hertz", "3000000", IntValue(3000000), false},
		{"int fraction", "capacity-byte", 1.5, nil, true},
		{"int negative fails default check", "capacity-byte", -1, nil, true},
		{"int explicit check", "core-n", 0, nil, true},
		{"int nan string", "capacity-byte", "NaN", nil, true},
		{"double", "psu-volt", 12.5, DoubleValue(12.5), false},
		{"double from int", "psu-volt", 5, DoubleValue(5), false},
		{"double check", "psu-volt", -3.3, nil, true},
		{"double nan", "psu-volt", "NaN", nil, true},
		{"string", "brand", "AsStone", StringValue("AsStone"), false},
		{"string empty", "brand", "", nil, true},
		{"string wrong type", "sn", 42, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Validate(tt.feature, tt.raw)
			if tt.wantErr {
				var invalid *InvalidFeatureValueError
				assert.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_SkipsCheck(t *testing.T) {
	v, err := Default().Coerce("capacity-byte", -5)

	require.NoError(t, err)
	assert.Equal(t, IntValue(-5), v)
}

func TestCheckOperator(t *testing.T) {
	c := Default()

	_, err := c.CheckOperator("brand", OpLike)
	assert.NoError(t, err)

	_, err = c.CheckOperator("capacity-byte", OpGe)
	assert.NoError(t, err)

	_, err = c.CheckOperator("capacity-byte", OpLike)
	var unsupported *UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, TypeInteger, unsupported.Type)

	_, err = c.CheckOperator("type", OpLt)
	assert.ErrorAs(t, err, &unsupported)

	_, err = c.CheckOperator("nope", OpEq)
	var unknown *UnknownFeatureError
	assert.ErrorAs(t, err, &unknown)
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator("!~")
	require.NoError(t, err)
	assert.Equal(t, "NOT LIKE", op.SQL())

	_, err = ParseOperator("==")
	assert.Error(t, err)
}

func TestValidateSet(t *testing.T) {
	set, err := Default().ValidateSet(map[string]any{
		"type":          "hdd",
		"capacity-byte": float64(666),
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "hdd", "capacity-byte": int64(666)}, set.Natives())
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"duplicate":      "features:\n  - {name: a, type: string}\n  - {name: a, type: string}\n",
		"bad type":       "features:\n  - {name: a, type: blob}\n",
		"enum no values": "features:\n  - {name: a, type: enum}\n",
		"bad check":      "features:\n  - {name: a, type: integer, check: 'value >'}\n",
		"bad prefix":     "features:\n  - {name: type, type: enum, values: [cpu]}\nprefixes:\n  cpu: c1\n",
		"unknown type":   "features:\n  - {name: type, type: enum, values: [cpu]}\nprefixes:\n  gpu: G\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_FromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "features:\n  - {name: type, type: enum, values: [widget]}\n  - {name: mass, type: double, check: 'value < 10.0'}\nprefixes:\n  widget: W\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	_, err = c.Validate("mass", 11.0)
	assert.Error(t, err)
	prefix, _ := c.CodePrefix("widget")
	assert.Equal(t, "W", prefix)
	assert.Len(t, c.Definitions(), 2)
}
